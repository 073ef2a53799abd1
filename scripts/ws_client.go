// Package main runs a demo WebSocket client for streaming solves.
//
//	go run ./scripts/ws_client.go -algo ip samples/sample_input_medium.txt
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"ottoroute/internal/loader"
	"ottoroute/internal/model"
)

type wsMessage struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

func main() {
	algo := flag.String("algo", "dp", "dp or ip")
	flag.Parse()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	req := model.SolveRequest{Algorithm: *algo, IncludeRoutes: true}
	if flag.NArg() > 0 {
		instances, err := loader.ParseFile(flag.Arg(0))
		if err != nil {
			log.Fatal(err)
		}
		for _, wps := range instances {
			req.Instances = append(req.Instances, model.InstanceIn{Waypoints: wps})
		}
	} else {
		req.Instances = []model.InstanceIn{{Waypoints: []model.Waypoint{
			{Point: model.Point{X: 50, Y: 0}, Penalty: 5},
			{Point: model.Point{X: 50, Y: 100}, Penalty: 5},
		}}}
	}

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/solve/ws"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	pl, _ := json.Marshal(req)
	if err := c.WriteJSON(wsMessage{Type: "solve", ID: "1", Payload: pl}); err != nil {
		log.Fatal(err)
	}

	_ = c.SetReadDeadline(time.Now().Add(2 * time.Minute))
	var runID string
	for {
		var m wsMessage
		if err := c.ReadJSON(&m); err != nil {
			log.Fatalf("read: %v", err)
		}
		log.Printf("WS <- %s: %s", m.Type, string(m.Payload))
		switch m.Type {
		case "accepted":
			var acc struct {
				RunID string `json:"runId"`
			}
			_ = json.Unmarshal(m.Payload, &acc)
			runID = acc.RunID
		case "error":
			os.Exit(1)
		}
		if m.Type == "complete" {
			break
		}
	}

	// The run is stored once complete.
	resp, err := http.Get(fmt.Sprintf("http://localhost:%s/v1/runs/%s", port, runID))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	var run model.Run
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		log.Fatal(err)
	}
	for _, r := range run.Results {
		if r.Cost != nil {
			fmt.Printf("%.3f\n", *r.Cost)
		} else {
			fmt.Println("no solution")
		}
	}
}
