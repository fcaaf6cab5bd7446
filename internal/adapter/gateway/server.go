package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"techassist/internal/domain"
	"techassist/internal/infra/middleware"
)

// RPCHandler handles a single RPC method call.
type RPCHandler func(ctx context.Context, client *ClientInfo, payload json.RawMessage) (json.RawMessage, error)

// Options configures a Server.
type Options struct {
	Addr      string
	Version   string
	RateLimit middleware.RateLimitConfig
	// Metrics is mounted at MetricsPath when non-nil.
	Metrics     http.Handler
	MetricsPath string
}

// clientConn tracks a single WebSocket connection.
type clientConn struct {
	info      *ClientInfo
	ws        *websocket.Conn
	sendCh    chan Frame // buffered outbound queue
	done      chan struct{}
	closeOnce sync.Once
}

// Server exposes the orchestrator over HTTP JSON endpoints and a
// WebSocket RPC channel.
type Server struct {
	svc        Service
	auth       Authenticator
	opts       Options
	logger     *slog.Logger
	startedAt  time.Time
	clients    sync.Map // connID (uint64) -> *clientConn
	nextID     atomic.Uint64
	handlersMu sync.RWMutex
	handlers   map[string]RPCHandler

	mu        sync.Mutex
	httpSrv   *http.Server
	boundAddr string
}

// NewServer creates a gateway server with the default RPC methods
// registered. A nil auth leaves every endpoint open.
func NewServer(svc Service, auth Authenticator, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	s := &Server{
		svc:       svc,
		auth:      auth,
		opts:      opts,
		logger:    logger,
		startedAt: time.Now(),
		handlers:  make(map[string]RPCHandler),
	}
	RegisterDefaultHandlers(s, svc)
	return s
}

// RegisterHandler adds an RPC handler for the given method name.
// Safe to call concurrently with active connections.
func (s *Server) RegisterHandler(method string, handler RPCHandler) {
	s.handlersMu.Lock()
	s.handlers[method] = handler
	s.handlersMu.Unlock()
}

// Handler builds the routed, middleware-wrapped HTTP handler. The rate
// limiter's eviction loop stops when ctx is cancelled.
func (s *Server) Handler(ctx context.Context) http.Handler {
	protected := requireAuth(s.auth)

	api := http.NewServeMux()
	api.Handle("POST /api/v1/query", protected(queryHandler(s.svc)))
	api.Handle("POST /api/v1/route", protected(routeHandler(s.svc)))
	api.Handle("GET /api/v1/conversations/{id}", protected(getConversationHandler(s.svc)))
	api.Handle("DELETE /api/v1/conversations/{id}", protected(deleteConversationHandler(s.svc)))

	mux := http.NewServeMux()
	mux.Handle("/api/", middleware.RateLimit(ctx, s.opts.RateLimit)(api))
	mux.HandleFunc("GET /api/v1/health", healthHandler(s.svc, s.startedAt, s.opts.Version))
	mux.HandleFunc("GET /ws", s.handleUpgrade)
	if s.opts.Metrics != nil {
		mux.Handle("GET "+s.opts.MetricsPath, s.opts.Metrics)
	}

	return middleware.Chain(mux,
		middleware.Recover(s.logger),
		middleware.RequestID,
		middleware.AccessLog(s.logger),
		middleware.SecurityHeaders,
	)
}

// Start serves until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}

	srv := &http.Server{
		Handler:           s.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.httpSrv = srv
	s.boundAddr = listener.Addr().String()
	s.mu.Unlock()

	s.logger.Info("gateway started", "addr", listener.Addr().String())

	go func() {
		<-ctx.Done()
		_ = s.Stop(context.Background())
	}()

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop closes WebSocket clients and gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.clients.Range(func(key, value any) bool {
		cc := value.(*clientConn)
		cc.closeOnce.Do(func() { close(cc.done) })
		cc.ws.Close(websocket.StatusGoingAway, "server shutting down")
		s.clients.Delete(key)
		return true
	})

	s.mu.Lock()
	srv := s.httpSrv
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// BoundAddr returns the address the server bound to, or "" before Start.
func (s *Server) BoundAddr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundAddr
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	client := &ClientInfo{Name: "anonymous"}
	if s.auth != nil {
		token := bearerToken(r)
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		info, err := s.auth.Authenticate(token)
		if err != nil {
			writeError(w, err)
			return
		}
		client = info
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{
			"localhost",
			"localhost:*",
			"127.0.0.1",
			"127.0.0.1:*",
			"[::1]",
			"[::1]:*",
		},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}
	ws.SetReadLimit(maxBodyBytes)

	connID := s.nextID.Add(1)
	cc := &clientConn{
		info:   client,
		ws:     ws,
		sendCh: make(chan Frame, 64),
		done:   make(chan struct{}),
	}
	s.clients.Store(connID, cc)
	s.logger.Info("gateway client connected", "conn_id", connID, "client", client.Name)

	go s.writeLoop(cc)
	s.readLoop(r.Context(), cc)

	cc.closeOnce.Do(func() { close(cc.done) })
	s.clients.Delete(connID)
	ws.Close(websocket.StatusNormalClosure, "")
	s.logger.Info("gateway client disconnected", "conn_id", connID)
}

func (s *Server) readLoop(ctx context.Context, cc *clientConn) {
	var wg sync.WaitGroup
	defer wg.Wait()
	for {
		select {
		case <-cc.done:
			return
		default:
		}

		var frame Frame
		if err := wsjson.Read(ctx, cc.ws, &frame); err != nil {
			return
		}
		if frame.Type != FrameTypeRequest {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.dispatchRPC(ctx, cc, frame)
		}()
	}
}

func (s *Server) writeLoop(cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		case frame := <-cc.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := wsjson.Write(ctx, cc.ws, frame)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func (s *Server) dispatchRPC(ctx context.Context, cc *clientConn, req Frame) {
	s.handlersMu.RLock()
	handler, ok := s.handlers[req.Method]
	s.handlersMu.RUnlock()
	if !ok {
		s.sendResponse(cc, req.ID, nil, domain.NewDomainError("gateway.rpc", domain.ErrNotFound, "method "+req.Method))
		return
	}
	result, err := handler(ctx, cc.info, req.Payload)
	s.sendResponse(cc, req.ID, result, err)
}

func (s *Server) sendResponse(cc *clientConn, id uint64, result json.RawMessage, err error) {
	resp := responseFrame(id, result, err)
	select {
	case cc.sendCh <- resp:
	case <-cc.done:
	default:
		s.logger.Warn("gateway: dropped RPC response for slow client", "frame_id", id)
	}
}
