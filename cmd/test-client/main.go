package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"onnoon-care/eye-monitor/internal/fatigue"
	"onnoon-care/eye-monitor/internal/sink"
)

const (
	TestEmail = "test@example.com"
	TestPass  = "Test123456"
)

var (
	backendURL = flag.String("url", "http://localhost:8081", "result store base URL")
	grpcAddr   = flag.String("grpc", "localhost:50051", "result store gRPC address")
)

// Health check
func testHealth() error {
	fmt.Println("\n[TEST] Testing /api/health...")
	resp, err := http.Get(*backendURL + "/api/health")
	if err != nil {
		return fmt.Errorf("health check failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check failed: status %d, body: %s", resp.StatusCode, string(body))
	}
	fmt.Printf("✓ Health check: %s\n", strings.TrimSpace(string(body)))
	return nil
}

func testGRPCHealth() error {
	fmt.Println("\n[TEST] Testing gRPC health service...")
	conn, err := grpc.Dial(*grpcAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return err
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		return fmt.Errorf("gRPC health check failed: %v", err)
	}
	fmt.Printf("✓ gRPC health: %s\n", resp.GetStatus())
	return nil
}

func testRegister() error {
	fmt.Println("\n[TEST] Testing /api/auth/register...")

	data := map[string]string{
		"email":    TestEmail,
		"username": "testuser",
		"password": TestPass,
	}

	jsonData, _ := json.Marshal(data)
	resp, err := http.Post(*backendURL+"/api/auth/register", "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("registration failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusCreated {
		fmt.Printf("✓ Registration successful: %s\n", strings.TrimSpace(string(body)))
		return nil
	} else if resp.StatusCode == http.StatusConflict {
		fmt.Printf("⚠ User already exists (this is OK)\n")
		return nil
	}

	return fmt.Errorf("registration failed: status %d, body: %s", resp.StatusCode, string(body))
}

func testLogin() (string, error) {
	fmt.Println("\n[TEST] Testing /api/auth/login...")

	data := map[string]string{
		"email":    TestEmail,
		"password": TestPass,
	}

	jsonData, _ := json.Marshal(data)
	resp, err := http.Post(*backendURL+"/api/auth/login", "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("login failed: %v", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login failed: status %d, body: %s", resp.StatusCode, string(body))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &tok); err != nil || tok.AccessToken == "" {
		return "", fmt.Errorf("no access token received")
	}

	fmt.Printf("✓ Login successful, bearer token received\n")
	return tok.AccessToken, nil
}

// testDeliver sends records the same way the monitor does.
func testDeliver() error {
	fmt.Println("\n[TEST] Delivering records with the remote sink...")

	remote, err := sink.NewRemoteSink(context.Background(), *backendURL, TestEmail, TestPass, nil, nil)
	if err != nil {
		return err
	}

	now := time.Now()
	samples := []fatigue.Record{
		fatigue.Evaluate(18, []float64{4.2, 11.8}, now.Add(-2*time.Minute)),
		fatigue.Evaluate(6, []float64{35.5}, now.Add(-time.Minute)),
	}
	for _, rec := range samples {
		if err := remote.Deliver(context.Background(), rec); err != nil {
			return err
		}
		fmt.Printf("✓ Record delivered: score=%.1f status=%s\n", rec.HealthScore, rec.Status)
	}
	return nil
}

func testGet(token, path string) error {
	fmt.Printf("\n[TEST] Testing %s...\n", path)

	req, _ := http.NewRequest(http.MethodGet, *backendURL+path, nil)
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s failed: %v", path, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s failed: status %d, body: %s", path, resp.StatusCode, string(body))
	}
	fmt.Printf("✓ %s: %s\n", path, strings.TrimSpace(string(body)))
	return nil
}

func main() {
	flag.Parse()

	fmt.Println("=" + strings.Repeat("=", 60))
	fmt.Println("EYE MONITOR - Result Store Testing Client")
	fmt.Println("=" + strings.Repeat("=", 60))
	fmt.Println("\n[INFO] Make sure the result store is running on", *backendURL)

	tests := []struct {
		name string
		fn   func() error
	}{
		{"Health Check", testHealth},
		{"gRPC Health Check", testGRPCHealth},
		{"Registration", testRegister},
		{"Delivery", testDeliver},
	}

	for _, test := range tests {
		if err := test.fn(); err != nil {
			log.Printf("❌ %s failed: %v", test.name, err)
			os.Exit(1)
		}
	}

	token, err := testLogin()
	if err != nil {
		log.Printf("❌ Login failed: %v", err)
		os.Exit(1)
	}

	for _, path := range []string{"/api/users/me", "/api/eye-fatigue/result", "/api/eye-fatigue/history", "/api/eye-fatigue/summary"} {
		if err := testGet(token, path); err != nil {
			log.Printf("❌ %v", err)
			os.Exit(1)
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("✅ All tests completed successfully!")
	fmt.Println("=" + strings.Repeat("=", 60))
}
