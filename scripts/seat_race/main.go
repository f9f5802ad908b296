package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// seat_race fires concurrent enrollments at one course of a running server
// and checks that it never admits more students than it has seats.

type envelope struct {
	Data struct {
		Capacity struct {
			TotalCapacity int `json:"total_capacity"`
			TakenSeats    int `json:"taken_seats"`
		} `json:"capacity"`
	} `json:"data"`
}

func main() {
	var (
		base       string
		courseID   string
		seats      int
		contenders int
		prefix     string
		timeout    time.Duration
	)
	flag.StringVar(&base, "base", "http://localhost:8080/api/v1", "Admission API base URL")
	flag.StringVar(&courseID, "course", "RACE-101", "Course to contend for (must exist in the directory)")
	flag.IntVar(&seats, "seats", 10, "Seats to offer")
	flag.IntVar(&contenders, "contenders", 100, "Concurrent enrollments")
	flag.StringVar(&prefix, "student-prefix", "race-student-", "Student id prefix")
	flag.DurationVar(&timeout, "timeout", 10*time.Second, "HTTP client timeout")
	flag.Parse()

	client := &http.Client{Timeout: timeout}
	base = strings.TrimRight(base, "/")
	courseURL := fmt.Sprintf("%s/courses/%s", base, courseID)

	if status, err := send(client, http.MethodPut, courseURL+"/capacity", map[string]int{"total_capacity": seats}, nil); err != nil || status != http.StatusOK {
		log.Fatalf("set capacity: status=%d err=%v", status, err)
	}

	var enrolled, waitlisted, failed atomic.Int64
	g, _ := errgroup.WithContext(context.Background())
	g.SetLimit(contenders)
	start := time.Now()
	for i := 0; i < contenders; i++ {
		studentID := fmt.Sprintf("%s%04d", prefix, i)
		g.Go(func() error {
			status, err := send(client, http.MethodPost, courseURL+"/enrollments", map[string]string{"student_id": studentID}, nil)
			switch {
			case err != nil:
				failed.Add(1)
			case status == http.StatusCreated:
				enrolled.Add(1)
			case status == http.StatusAccepted:
				waitlisted.Add(1)
			default:
				failed.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	elapsed := time.Since(start)

	var ledger envelope
	if status, err := send(client, http.MethodGet, courseURL+"/capacity", nil, &ledger); err != nil || status != http.StatusOK {
		log.Fatalf("read capacity: status=%d err=%v", status, err)
	}

	fmt.Printf("contenders=%d seats=%d enrolled=%d waitlisted=%d failed=%d taken=%d elapsed=%s\n",
		contenders, seats, enrolled.Load(), waitlisted.Load(), failed.Load(), ledger.Data.Capacity.TakenSeats, elapsed)

	oversold := ledger.Data.Capacity.TakenSeats > ledger.Data.Capacity.TotalCapacity || enrolled.Load() > int64(seats)
	if oversold {
		fmt.Println("OVERSOLD")
		os.Exit(1)
	}
}

func send(client *http.Client, method, url string, body interface{}, dest interface{}) (int, error) {
	var payload *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, err
		}
		payload = bytes.NewReader(raw)
	} else {
		payload = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, payload)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if dest != nil {
		if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
			return resp.StatusCode, err
		}
	}
	return resp.StatusCode, nil
}
