package quote

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"marginrisk/pkg/fixedpoint"
	"marginrisk/pkg/riskerr"
)

// WSSource is a streaming swap-router client for routers that push
// continuous quote updates over a websocket rather than answering
// request/response GETs, behind the same Source interface as HTTPSource.
// BuildSwap is delegated to an HTTP fallback since signing a selected quote
// remains a one-shot request even for streaming routers.
type WSSource struct {
	name       string
	url        string
	buildSwaps func(ctx context.Context, q Quote) (SignedSwap, error)

	mu     sync.RWMutex
	latest map[string]Quote

	conn *websocket.Conn
}

// NewWSSource constructs a WSSource. buildSwaps handles BuildSwap; pass a
// *HTTPSource's BuildSwap method when the router exposes one.
func NewWSSource(name, url string, buildSwaps func(ctx context.Context, q Quote) (SignedSwap, error)) *WSSource {
	return &WSSource{
		name:       strings.TrimSpace(name),
		url:        url,
		buildSwaps: buildSwaps,
		latest:     make(map[string]Quote),
	}
}

// Name implements Source.
func (s *WSSource) Name() string { return s.name }

// Connect dials the router and starts the background read loop that keeps
// the latest-quote cache fresh until ctx is cancelled.
func (s *WSSource) Connect(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, s.url, nil)
	if err != nil {
		return fmt.Errorf("quote: websocket dial %s: %w", s.name, err)
	}
	s.conn = conn
	go s.readLoop(ctx, conn)
	return nil
}

type wsQuoteUpdate struct {
	Pair      string `json:"pair"`
	InAmount  string `json:"inAmount"`
	OutAmount string `json:"outAmount"`
	Opaque    string `json:"opaqueQuote"`
}

func (s *WSSource) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "done") }()
	for {
		var update wsQuoteUpdate
		if err := wsjson.Read(ctx, conn, &update); err != nil {
			return
		}
		s.mu.Lock()
		s.latest[update.Pair] = Quote{
			InAmount:    parseAmount(update.InAmount),
			OutAmount:   parseAmount(update.OutAmount),
			OpaqueQuote: []byte(update.Opaque),
		}
		s.mu.Unlock()
	}
}

func parseAmount(s string) fixedpoint.Q {
	var n int64
	if _, err := fmt.Sscanf(s, "%d", &n); err != nil {
		return fixedpoint.Zero()
	}
	return fixedpoint.FromInt64(n)
}

// Quote implements Source by returning the most recently streamed quote for
// the request's pair, or ErrQuoteTimeout if nothing has arrived yet.
func (s *WSSource) Quote(ctx context.Context, req Request) (Quote, error) {
	key := req.InputMint + "/" + req.OutputMint
	s.mu.RLock()
	q, ok := s.latest[key]
	s.mu.RUnlock()
	if !ok {
		return Quote{}, riskerr.Wrap(riskerr.KindTransient, riskerr.ErrQuoteTimeout)
	}
	return q, nil
}

// BuildSwap implements Source by delegating to the configured HTTP builder.
func (s *WSSource) BuildSwap(ctx context.Context, q Quote) (SignedSwap, error) {
	if s.buildSwaps == nil {
		return SignedSwap{}, fmt.Errorf("quote: %s has no swap-build endpoint configured", s.name)
	}
	return s.buildSwaps(ctx, q)
}

// Close releases the websocket connection, if connected.
func (s *WSSource) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close(websocket.StatusNormalClosure, "closing")
}
