// Command roster_import bulk-enrolls students into a session from a
// CSV roster exported by the registrar (columns: student_id, credits).
// Rows with an empty credits column are imported without a snapshot
// and land as ineligible until credits are recorded.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type enrollRequest struct {
	StudentID     string   `json:"student_id"`
	SessionID     string   `json:"session_id"`
	CreditsEarned *float64 `json:"credits_earned,omitempty"`
}

type rosterRow struct {
	StudentID string
	Credits   *float64
}

type importResult struct {
	Row    rosterRow
	Status int
	Error  error
}

func main() {
	var (
		base      string
		rosterCSV string
		sessionID string
		email     string
		password  string
		timeout   time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&rosterCSV, "roster", "roster.csv", "Path to the registrar CSV export")
	flag.StringVar(&sessionID, "session", "", "Target session ID")
	flag.StringVar(&email, "email", "", "Coordinator or admin email")
	flag.StringVar(&password, "password", "", "Account password (prefer ROSTER_IMPORT_PASSWORD)")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	if password == "" {
		password = os.Getenv("ROSTER_IMPORT_PASSWORD")
	}
	if sessionID == "" || email == "" || password == "" {
		log.Fatal("session, email, and a password are required")
	}

	rows, err := loadRoster(rosterCSV)
	if err != nil {
		log.Fatalf("failed to load roster: %v", err)
	}

	client := &http.Client{Timeout: timeout}
	token, err := login(client, base, email, password)
	if err != nil {
		log.Fatalf("login failed: %v", err)
	}

	var (
		results []importResult
		failed  int
	)
	for _, row := range rows {
		res := enroll(client, base, token, sessionID, row)
		if res.Error != nil || res.Status >= http.StatusBadRequest {
			// 409 means the student was already enrolled; a rerun of
			// the same roster is expected to hit this.
			if res.Status != http.StatusConflict {
				failed++
			}
		}
		results = append(results, res)
	}

	printReport(results)

	fmt.Printf("Imported %d rows, %d failed\n", len(results), failed)
	if failed > 0 {
		os.Exit(1)
	}
}

func loadRoster(path string) ([]rosterRow, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	var rows []rosterRow
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if line == 1 && strings.EqualFold(strings.TrimSpace(record[0]), "student_id") {
			continue
		}
		studentID := strings.TrimSpace(record[0])
		if studentID == "" {
			continue
		}
		row := rosterRow{StudentID: studentID}
		if len(record) > 1 && strings.TrimSpace(record[1]) != "" {
			credits, err := strconv.ParseFloat(strings.TrimSpace(record[1]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d: bad credits %q: %w", line, record[1], err)
			}
			row.Credits = &credits
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("no roster rows in %s", path)
	}
	return rows, nil
}

func login(client *http.Client, base, email, password string) (string, error) {
	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return "", err
	}
	resp, err := client.Post(apiURL(base, "/auth/login"), "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	var envelope struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return "", err
	}
	if envelope.Data.AccessToken == "" {
		return "", fmt.Errorf("login response carried no token")
	}
	return envelope.Data.AccessToken, nil
}

func enroll(client *http.Client, base, token, sessionID string, row rosterRow) importResult {
	res := importResult{Row: row}
	body, err := json.Marshal(enrollRequest{
		StudentID:     row.StudentID,
		SessionID:     sessionID,
		CreditsEarned: row.Credits,
	})
	if err != nil {
		res.Error = err
		return res
	}

	req, err := http.NewRequest(http.MethodPost, apiURL(base, "/enrollments"), bytes.NewReader(body))
	if err != nil {
		res.Error = err
		return res
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		res.Error = err
		return res
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body) //nolint:errcheck

	res.Status = resp.StatusCode
	return res
}

func apiURL(base, path string) string {
	return strings.TrimRight(base, "/") + "/api/v1" + path
}

func printReport(results []importResult) {
	fmt.Println("Roster Import Report")
	fmt.Println("====================")
	for _, res := range results {
		status := "OK"
		switch {
		case res.Error != nil:
			status = "ERROR"
		case res.Status == http.StatusConflict:
			status = "SKIP"
		case res.Status >= http.StatusBadRequest:
			status = "FAIL"
		}
		credits := "-"
		if res.Row.Credits != nil {
			credits = strconv.FormatFloat(*res.Row.Credits, 'f', -1, 64)
		}
		fmt.Printf("[%s] %s credits=%s\n", status, res.Row.StudentID, credits)
		if res.Error != nil {
			fmt.Printf("  Error: %v\n", res.Error)
		} else if res.Status != 0 {
			fmt.Printf("  Status: %d\n", res.Status)
		}
	}
}
