// Package api exposes read-only HTTP endpoints over a running sale and
// pushes sale events to websocket subscribers.
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/tokenforge/tokensale/crowdsale"
)

// Server serves sale state over HTTP. Mutations stay in-process: the API is
// a window, not a control surface.
type Server struct {
	engine *crowdsale.Engine
	log    *logrus.Logger

	upgrader     websocket.Upgrader
	clients      map[*websocket.Conn]bool
	clientsMutex sync.RWMutex

	// Serializes broadcasts: handlers fire on their own goroutines and
	// gorilla connections allow one concurrent writer.
	sendMutex sync.Mutex
}

// NewServer wires a server to the engine and subscribes to its events for
// websocket broadcast.
func NewServer(engine *crowdsale.Engine, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	s := &Server{
		engine: engine,
		log:    log,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		clients: make(map[*websocket.Conn]bool),
	}
	engine.RegisterEventHandler(s.broadcastEvent)
	return s
}

// Handler returns the route table, for mounting or for tests.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/sale", corsHandler(s.handleSale))
	mux.HandleFunc("/api/balance", corsHandler(s.handleBalance))
	mux.HandleFunc("/api/paid-in", corsHandler(s.handlePaidIn))
	mux.HandleFunc("/api/whitelist", corsHandler(s.handleWhitelist))
	mux.HandleFunc("/api/roster", corsHandler(s.handleRoster))
	mux.HandleFunc("/api/events", corsHandler(s.handleEvents))
	mux.HandleFunc("/api/health", corsHandler(s.handleHealth))
	mux.HandleFunc("/ws/events", s.handleEventSocket)
	return mux
}

// Start serves until the listener fails.
func (s *Server) Start(addr string) error {
	s.log.WithField("addr", addr).Info("API server listening")
	return http.ListenAndServe(addr, s.Handler())
}

func corsHandler(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// saleResponse is the /api/sale payload.
type saleResponse struct {
	SaleName    string              `json:"sale_name"`
	TokenName   string              `json:"token_name"`
	TokenSymbol string              `json:"token_symbol"`
	State       crowdsale.SaleState `json:"state"`
	Rate        string              `json:"rate"`
	Start       time.Time           `json:"start"`
	MinDeposit  string              `json:"min_deposit"`
	MaxDeposit  string              `json:"max_deposit"`
	SoftCap     string              `json:"soft_cap"`
	HardCap     string              `json:"hard_cap"`
	Raised      string              `json:"raised"`
	Held        string              `json:"held"`
	Collected   bool                `json:"collected"`
	TotalSupply string              `json:"total_supply"`
	Admin       string              `json:"admin"`
}

func (s *Server) handleSale(w http.ResponseWriter, r *http.Request) {
	params := s.engine.Params()
	writeJSON(w, http.StatusOK, saleResponse{
		SaleName:    params.SaleName,
		TokenName:   params.TokenName,
		TokenSymbol: params.TokenSymbol,
		State:       s.engine.State(),
		Rate:        params.Rate.Dec(),
		Start:       params.Start,
		MinDeposit:  params.MinDeposit.Dec(),
		MaxDeposit:  params.MaxDeposit.Dec(),
		SoftCap:     params.SoftCap.Dec(),
		HardCap:     params.HardCap.Dec(),
		Raised:      s.engine.Raised().Dec(),
		Held:        s.engine.Held().Dec(),
		Collected:   s.engine.Collected(),
		TotalSupply: s.engine.Ledger().TotalSupply().Dec(),
		Admin:       s.engine.Admin().Hex(),
	})
}

func (s *Server) parseAddress(w http.ResponseWriter, r *http.Request) (common.Address, bool) {
	raw := r.URL.Query().Get("address")
	if !common.IsHexAddress(raw) {
		writeError(w, http.StatusBadRequest, "missing or invalid address parameter")
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	address, ok := s.parseAddress(w, r)
	if !ok {
		return
	}
	balance, err := s.engine.Ledger().BalanceOf(address)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"address": address.Hex(),
		"balance": balance.Dec(),
	})
}

func (s *Server) handlePaidIn(w http.ResponseWriter, r *http.Request) {
	address, ok := s.parseAddress(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"address": address.Hex(),
		"paid_in": s.engine.PaidIn(address).Dec(),
	})
}

func (s *Server) handleWhitelist(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("address"); raw != "" {
		address, ok := s.parseAddress(w, r)
		if !ok {
			return
		}
		admitted, err := s.engine.IsWhitelisted(address)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"address":     address.Hex(),
			"whitelisted": admitted,
		})
		return
	}

	members := s.engine.WhitelistMembers()
	hexed := make([]string, 0, len(members))
	for _, member := range members {
		hexed = append(hexed, member.Hex())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"whitelist": hexed})
}

func (s *Server) handleRoster(w http.ResponseWriter, r *http.Request) {
	count := s.engine.RosterLen()
	roster := make([]string, 0, count)
	for i := 0; i < count; i++ {
		account, err := s.engine.RosterAt(i)
		if err != nil {
			break
		}
		roster = append(roster, account.Hex())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":  count,
		"roster": roster,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": s.engine.Ledger().Events(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"state":  s.engine.State(),
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handleEventSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	s.clientsMutex.Lock()
	s.clients[conn] = true
	s.clientsMutex.Unlock()
	s.log.WithField("remote", conn.RemoteAddr().String()).Info("WebSocket client connected")

	// Reader loop only detects disconnects; the socket is push-only.
	go func() {
		defer s.dropClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) dropClient(conn *websocket.Conn) {
	s.clientsMutex.Lock()
	delete(s.clients, conn)
	s.clientsMutex.Unlock()
	conn.Close()
}

func (s *Server) broadcastEvent(event crowdsale.Event) {
	s.sendMutex.Lock()
	defer s.sendMutex.Unlock()

	s.clientsMutex.RLock()
	conns := make([]*websocket.Conn, 0, len(s.clients))
	for conn := range s.clients {
		conns = append(conns, conn)
	}
	s.clientsMutex.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteJSON(event); err != nil {
			s.log.Warnf("WebSocket write failed, dropping client: %v", err)
			s.dropClient(conn)
		}
	}
}
