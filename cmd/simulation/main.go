package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/ksred/klear-brokerage/internal/api"
	"github.com/ksred/klear-brokerage/internal/config"
	"github.com/ksred/klear-brokerage/internal/database"
)

const (
	minOrders  = 15
	maxOrders  = 150
	numWorkers = 5
)

type instrumentSeed struct {
	symbol       string
	company      string
	exchangeType string
	lotSize      int64
	price        string
}

var (
	instrumentSeeds = []instrumentSeed{
		{"RELIANCE", "Reliance Industries", "Equity", 0, "2950.40"},
		{"INFY", "Infosys", "Equity", 0, "1520.75"},
		{"TCS", "Tata Consultancy Services", "Equity", 0, "3875.10"},
		{"NIFTY24DECFUT", "Nifty 50 December Future", "Futures", 25, "24150.00"},
		{"GOLDM", "Gold Mini", "Commodity", 10, "71250.00"},
	}
	sides = []string{"BUY", "SELL"}
)

// init configures the logger for the simulation with pretty printing and timestamp
func init() {
	output := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}
	log.Logger = zerolog.New(output).With().Timestamp().Logger()
}

// routeStats tracks performance statistics for an API endpoint
type routeStats struct {
	name       string
	durations  []time.Duration
	totalCalls int
	failures   int
}

// addDuration records a new duration measurement for the route
func (rs *routeStats) addDuration(d time.Duration) {
	rs.durations = append(rs.durations, d)
	rs.totalCalls++
}

// calculate computes performance statistics from recorded durations
// Returns min, max, mean, median, 95th percentile, and 99th percentile durations
func (rs *routeStats) calculate() (min, max, mean, median, p95, p99 time.Duration) {
	if len(rs.durations) == 0 {
		return 0, 0, 0, 0, 0, 0
	}

	sort.Slice(rs.durations, func(i, j int) bool {
		return rs.durations[i] < rs.durations[j]
	})

	min = rs.durations[0]
	max = rs.durations[len(rs.durations)-1]

	var sum time.Duration
	for _, d := range rs.durations {
		sum += d
	}
	mean = sum / time.Duration(len(rs.durations))

	median = rs.durations[len(rs.durations)/2]

	p95idx := int(math.Ceil(float64(len(rs.durations))*0.95)) - 1
	p99idx := int(math.Ceil(float64(len(rs.durations))*0.99)) - 1
	p95 = rs.durations[p95idx]
	p99 = rs.durations[p99idx]

	return
}

// apiError is a non-2xx envelope returned by the API
type apiError struct {
	Status  int
	Code    string
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// simulationClient handles HTTP communication with the brokerage API
type simulationClient struct {
	baseURL string
	client  *http.Client

	mu    sync.Mutex
	stats map[string]*routeStats
}

func newSimulationClient(baseURL string) *simulationClient {
	return &simulationClient{
		baseURL: baseURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		stats: map[string]*routeStats{
			"client":     {name: "Register Client"},
			"kyc":        {name: "Update KYC"},
			"instrument": {name: "Register Instr."},
			"place":      {name: "Place Order"},
			"modify":     {name: "Modify Order"},
			"cancel":     {name: "Cancel Order"},
			"status":     {name: "Order Status Hook"},
			"get":        {name: "Get Order"},
			"watchlist":  {name: "Create Watchlist"},
			"watch_add":  {name: "Add To Watchlist"},
			"summary":    {name: "Watchlist Summary"},
		},
	}
}

func (sc *simulationClient) record(route string, d time.Duration, failed bool) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	stats := sc.stats[route]
	stats.addDuration(d)
	if failed {
		stats.failures++
	}
}

// call sends one JSON request and decodes the envelope data into out
// Business rule rejections are returned as *apiError and are not counted as failures
func (sc *simulationClient) call(route, method, path string, body interface{}, headers map[string]string, out interface{}) error {
	start := time.Now()
	var err error
	defer func() {
		_, rejected := err.(*apiError)
		sc.record(route, time.Since(start), err != nil && !rejected)
	}()

	var payload io.Reader
	if body != nil {
		raw, marshalErr := json.Marshal(body)
		if marshalErr != nil {
			err = marshalErr
			return err
		}
		payload = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequest(method, sc.baseURL+path, payload)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := sc.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		err = fmt.Errorf("failed to read response body: %w", err)
		return err
	}
	log.Debug().Str("route", route).Str("response", string(respBody)).Msg("API response")

	var result struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err = json.Unmarshal(respBody, &result); err != nil {
		err = fmt.Errorf("failed to decode response: %w, body: %s", err, string(respBody))
		return err
	}

	if !result.Success {
		apiErr := &apiError{Status: resp.StatusCode}
		if result.Error != nil {
			apiErr.Code = result.Error.Code
			apiErr.Message = result.Error.Message
		}
		if resp.StatusCode >= http.StatusInternalServerError || resp.StatusCode == http.StatusTooManyRequests {
			err = fmt.Errorf("request failed: %s", apiErr.Error())
			return err
		}
		err = apiErr
		return err
	}

	if out != nil {
		if err = json.Unmarshal(result.Data, out); err != nil {
			err = fmt.Errorf("failed to decode data: %w", err)
		}
	}
	return err
}

type idResponse struct {
	ClientID     string `json:"client_id"`
	InstrumentID string `json:"instrument_id"`
	OrderID      string `json:"order_id"`
	WatchListID  string `json:"watchlist_id"`
}

type instrumentRef struct {
	id      string
	symbol  string
	lotSize int64
	price   decimal.Decimal
}

// registerClient creates a client and, when eligible is set, completes its KYC
func (sc *simulationClient) registerClient(n int, eligible bool) (string, error) {
	var created idResponse
	err := sc.call("client", http.MethodPost, "/api/v1/clients", map[string]interface{}{
		"client_code": fmt.Sprintf("SIM%03d", n),
		"name":        fmt.Sprintf("Simulated Client %d", n),
		"phone":       fmt.Sprintf("90000%05d", n),
		"pan":         fmt.Sprintf("ABCDE%04dF", n%10000),
	}, nil, &created)
	if err != nil {
		return "", err
	}

	if eligible {
		if err := sc.call("kyc", http.MethodPut, "/api/v1/clients/"+created.ClientID+"/status",
			map[string]string{"kyc_status": "COMPLETED"}, nil, nil); err != nil {
			return "", err
		}
	}
	return created.ClientID, nil
}

func (sc *simulationClient) registerInstrument(seed instrumentSeed) (instrumentRef, error) {
	body := map[string]interface{}{
		"symbol":        seed.symbol,
		"company_name":  seed.company,
		"exchange":      "NSE",
		"exchange_type": seed.exchangeType,
		"current_price": seed.price,
	}
	if seed.lotSize > 0 {
		body["lot_size"] = seed.lotSize
	}

	var created idResponse
	if err := sc.call("instrument", http.MethodPost, "/api/v1/instruments", body, nil, &created); err != nil {
		return instrumentRef{}, err
	}
	return instrumentRef{
		id:      created.InstrumentID,
		symbol:  seed.symbol,
		lotSize: seed.lotSize,
		price:   decimal.RequireFromString(seed.price),
	}, nil
}

// placeOrder submits an order with a fresh idempotency key and occasionally replays it
func (sc *simulationClient) placeOrder(order map[string]interface{}, replay bool) (string, error) {
	headers := map[string]string{"Idempotency-Key": uuid.New().String()}

	var placed idResponse
	if err := sc.call("place", http.MethodPost, "/api/v1/orders", order, headers, &placed); err != nil {
		return "", err
	}

	if replay {
		var replayed idResponse
		if err := sc.call("place", http.MethodPost, "/api/v1/orders", order, headers, &replayed); err != nil {
			return "", err
		}
		if replayed.OrderID != placed.OrderID {
			return "", fmt.Errorf("idempotent replay returned %s, expected %s", replayed.OrderID, placed.OrderID)
		}
	}
	return placed.OrderID, nil
}

// printPerformanceStats outputs formatted performance statistics for all API endpoints
func (sc *simulationClient) printPerformanceStats() {
	fmt.Println("\nAPI Performance Statistics")
	fmt.Println(strings.Repeat("-", 110))
	fmt.Printf("%-20s %10s %10s %10s %10s %10s %10s %10s %10s\n",
		"Endpoint", "Calls", "Errors", "Min", "Max", "Mean", "Median", "P95", "P99")
	fmt.Println(strings.Repeat("-", 110))

	keys := make([]string, 0, len(sc.stats))
	for key := range sc.stats {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		stats := sc.stats[key]
		min, max, mean, median, p95, p99 := stats.calculate()
		fmt.Printf("%-20s %10d %10d %10s %10s %10s %10s %10s %10s\n",
			stats.name,
			stats.totalCalls,
			stats.failures,
			min.Round(time.Microsecond),
			max.Round(time.Microsecond),
			mean.Round(time.Microsecond),
			median.Round(time.Microsecond),
			p95.Round(time.Microsecond),
			p99.Round(time.Microsecond))
	}
	fmt.Println(strings.Repeat("-", 110))
}

// outcomes counts results by outcome label across workers
type outcomes struct {
	mu     sync.Mutex
	counts map[string]int
}

func (o *outcomes) add(label string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.counts[label]++
}

func outcomeOf(err error) string {
	if err == nil {
		return "OK"
	}
	if apiErr, ok := err.(*apiError); ok {
		return apiErr.Code
	}
	return "FAILED"
}

// main runs the brokerage simulation
// Without -url it starts an in-process server on an in-memory database
func main() {
	baseURL := flag.String("url", "", "base URL of a running server; empty starts an embedded one")
	addr := flag.String("addr", ":8089", "listen address for the embedded server")
	flag.Parse()

	if *baseURL == "" {
		go func() {
			if err := startServer(*addr); err != nil {
				log.Fatal().Err(err).Msg("Failed to start server")
			}
		}()
		*baseURL = "http://localhost" + *addr

		// Wait for server to start
		time.Sleep(2 * time.Second)
	}

	sc := newSimulationClient(*baseURL)
	start := time.Now()

	instruments := make([]instrumentRef, 0, len(instrumentSeeds))
	for _, seed := range instrumentSeeds {
		ref, err := sc.registerInstrument(seed)
		if err != nil {
			log.Fatal().Err(err).Str("symbol", seed.symbol).Msg("Failed to register instrument")
		}
		instruments = append(instruments, ref)
	}

	clients := make([]string, numWorkers)
	for i := range clients {
		clientID, err := sc.registerClient(i, true)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to register client")
		}
		clients[i] = clientID
	}
	ineligible, err := sc.registerClient(numWorkers, false)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register client")
	}

	targetOrders := rand.Intn(maxOrders-minOrders) + minOrders
	log.Info().
		Int("target_orders", targetOrders).
		Int("clients", len(clients)).
		Int("instruments", len(instruments)).
		Msg("Starting simulation")

	placements := &outcomes{counts: make(map[string]int)}
	lifecycle := &outcomes{counts: make(map[string]int)}
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			runOrderWorker(workerID, targetOrders/numWorkers, sc, clients[workerID], instruments, placements, lifecycle)
		}(i)
	}

	// One ineligible client keeps trying; every attempt must be rejected
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 3; i++ {
			_, err := sc.placeOrder(map[string]interface{}{
				"client_id": ineligible, "instrument_id": instruments[0].id, "side": "BUY", "quantity": 1, "price": "10",
			}, false)
			placements.add(outcomeOf(err))
		}
	}()

	wg.Wait()

	summaries := runWatchLists(sc, clients, instruments)

	duration := time.Since(start)
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("BROKERAGE SIMULATION SUMMARY")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("\nOrder placement outcomes")
	fmt.Println("------------------------")
	printDistribution(placements.counts)

	fmt.Println("\nLifecycle outcomes")
	fmt.Println("------------------")
	printDistribution(lifecycle.counts)

	fmt.Println("\nWatchlist summaries")
	fmt.Println("-------------------")
	for _, s := range summaries {
		fmt.Println(s)
	}

	fmt.Printf("\nDuration: %v\n", duration.Round(time.Millisecond))
	fmt.Println(strings.Repeat("=", 80))

	log.Info().
		Int("target_orders", targetOrders).
		Int("accepted", placements.counts["OK"]).
		Dur("duration", duration).
		Msg("Simulation completed")

	sc.printPerformanceStats()
}

// runOrderWorker places random orders for one client and walks some of them through
// modify, cancel and the settlement status hook
func runOrderWorker(workerID, numOrders int, sc *simulationClient, clientID string, instruments []instrumentRef, placements, lifecycle *outcomes) {
	logger := log.With().Int("worker_id", workerID).Str("client_id", clientID).Logger()

	for i := 0; i < numOrders; i++ {
		inst := instruments[rand.Intn(len(instruments))]

		quantity := int64(rand.Intn(20) + 1)
		if inst.lotSize > 0 {
			quantity *= inst.lotSize
			// Roughly one in five derivative orders breaks the lot size
			if rand.Intn(5) == 0 {
				quantity++
			}
		}

		// Limit price within 2% of the current price
		offset := decimal.NewFromInt(int64(rand.Intn(41) - 20)).Div(decimal.NewFromInt(1000))
		price := inst.price.Mul(decimal.NewFromInt(1).Add(offset)).Round(2)

		order := map[string]interface{}{
			"client_id":     clientID,
			"instrument_id": inst.id,
			"side":          sides[rand.Intn(len(sides))],
			"quantity":      quantity,
			"price":         price.String(),
			"validity":      "DAY",
		}

		orderID, err := sc.placeOrder(order, rand.Intn(10) == 0)
		placements.add(outcomeOf(err))
		if err != nil {
			logger.Warn().Err(err).Str("symbol", inst.symbol).Int64("quantity", quantity).Msg("Order rejected")
			continue
		}
		logger.Info().
			Str("order_id", orderID).
			Str("symbol", inst.symbol).
			Int64("quantity", quantity).
			Str("price", price.String()).
			Msg("Order placed")

		switch rand.Intn(4) {
		case 0:
			err = sc.call("modify", http.MethodPut, "/api/v1/orders/"+orderID+"/modify", map[string]interface{}{
				"price":    price.Add(decimal.NewFromInt(1)).String(),
				"quantity": quantity,
			}, nil, nil)
			lifecycle.add("modify " + outcomeOf(err))
		case 1:
			err = sc.call("cancel", http.MethodDelete, "/api/v1/orders/"+orderID, nil, nil, nil)
			lifecycle.add("cancel " + outcomeOf(err))
			// A cancelled order can no longer be modified
			err = sc.call("modify", http.MethodPut, "/api/v1/orders/"+orderID+"/modify", map[string]interface{}{
				"price": price.String(),
			}, nil, nil)
			lifecycle.add("modify after cancel " + outcomeOf(err))
		case 2:
			err = sc.call("status", http.MethodPut, "/api/v1/internal/orders/"+orderID+"/status",
				map[string]string{"status": "EXECUTED"}, nil, nil)
			lifecycle.add("execute " + outcomeOf(err))
		}

		var current struct {
			Status string `json:"status"`
		}
		if err := sc.call("get", http.MethodGet, "/api/v1/orders/"+orderID, nil, nil, &current); err == nil {
			lifecycle.add("final " + current.Status)
		}

		// Random sleep between orders
		time.Sleep(time.Duration(rand.Intn(200)) * time.Millisecond)
	}
}

// runWatchLists gives every client a watchlist of all instruments and returns their summary reports
func runWatchLists(sc *simulationClient, clients []string, instruments []instrumentRef) []string {
	reports := make([]string, 0, len(clients))

	for i, clientID := range clients {
		var list idResponse
		if err := sc.call("watchlist", http.MethodPost, "/api/v1/watchlists", map[string]interface{}{
			"client_id": clientID,
			"name":      fmt.Sprintf("Simulated %d", i),
		}, nil, &list); err != nil {
			log.Error().Err(err).Str("client_id", clientID).Msg("Failed to create watchlist")
			continue
		}

		for _, inst := range instruments {
			if err := sc.call("watch_add", http.MethodPost, "/api/v1/watchlists/"+list.WatchListID+"/instruments",
				map[string]string{"instrument_id": inst.id}, nil, nil); err != nil {
				log.Error().Err(err).Str("watchlist_id", list.WatchListID).Msg("Failed to add instrument")
			}
		}

		var summary struct {
			Report string `json:"report"`
		}
		if err := sc.call("summary", http.MethodGet, "/api/v1/watchlists/"+list.WatchListID+"/summary", nil, nil, &summary); err != nil {
			log.Error().Err(err).Str("watchlist_id", list.WatchListID).Msg("Failed to fetch summary")
			continue
		}
		reports = append(reports, summary.Report)
	}

	return reports
}

// printDistribution prints counts with a simple ASCII bar chart
func printDistribution(counts map[string]int) {
	labels := make([]string, 0, len(counts))
	maxCount := 0
	for label, count := range counts {
		labels = append(labels, label)
		if count > maxCount {
			maxCount = count
		}
	}
	sort.Strings(labels)

	for _, label := range labels {
		count := counts[label]
		barLength := int(float64(count) / float64(maxCount) * 20)
		fmt.Printf("%-28s: %s (%d)\n", label, strings.Repeat("#", barLength), count)
	}
}

// startServer runs the brokerage API on an in-memory database
func startServer(addr string) error {
	db, err := database.NewInMemoryDatabase()
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	// The simulation is the only caller, so nothing is rate limited
	router := api.NewRouter(db, config.RateLimits{})

	return router.Run(addr)
}
