package transport

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	applog "sti/internal/log"
	"sti/internal/sti"
)

// wsFrame is the JSON payload broadcast per iteration. The full power cube
// is too heavy for a browser stream, so clients receive the dB-converted
// median spectrum per subchannel plus both axes.
type wsFrame struct {
	Entry       string      `json:"entry"`
	Index       int         `json:"index"`
	Progress    float64     `json:"progress"`
	Frequencies []float64   `json:"frequencies"`
	Times       []float64   `json:"times"`
	MedianDB    [][]float64 `json:"median_db"`
}

// WebSocketTransport broadcasts iteration frames to every connected
// WebSocket client. A slow client never stalls the session loop: frames
// queue into a bounded channel and the oldest are dropped when it fills.
type WebSocketTransport struct {
	addr      string
	upgrader  websocket.Upgrader
	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan wsFrame
	server    *http.Server
}

// NewWebSocketTransport starts a broadcast server on addr, serving
// connections at /ws.
func NewWebSocketTransport(addr string) *WebSocketTransport {
	wst := &WebSocketTransport{
		addr: addr,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan wsFrame, 64),
	}
	wst.start()
	return wst
}

func (wst *WebSocketTransport) start() {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wst.handleWebSocket)
	wst.server = &http.Server{Addr: wst.addr, Handler: mux}

	go func() {
		applog.Infof("transport: websocket listening on %s", wst.addr)
		if err := wst.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			applog.Errorf("transport: websocket server: %v", err)
		}
	}()
	go wst.handleBroadcasts()
}

func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("transport: websocket upgrade: %v", err)
		return
	}

	wst.clientsMu.Lock()
	wst.clients[conn] = true
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	applog.Infof("transport: websocket client connected (%d total)", total)

	go func() {
		// Block until the client goes away.
		if _, _, err := conn.ReadMessage(); err != nil {
			wst.clientsMu.Lock()
			delete(wst.clients, conn)
			total := len(wst.clients)
			wst.clientsMu.Unlock()
			conn.Close()
			applog.Infof("transport: websocket client disconnected (%d total)", total)
		}
	}()
}

func (wst *WebSocketTransport) handleBroadcasts() {
	for frame := range wst.broadcast {
		wst.clientsMu.Lock()
		for client := range wst.clients {
			if err := client.WriteJSON(frame); err != nil {
				applog.Warnf("transport: websocket write: %v", err)
				client.Close()
				delete(wst.clients, client)
			}
		}
		wst.clientsMu.Unlock()
	}
}

// Send implements Transport. Non-iteration payloads and full queues are
// dropped without error; broadcast is best-effort.
func (wst *WebSocketTransport) Send(data any) error {
	it, ok := data.(sti.Iteration)
	if !ok {
		return nil
	}

	medianDB := make([][]float64, len(it.Median))
	for sub, row := range it.Median {
		medianDB[sub] = make([]float64, len(row))
		for i, v := range row {
			medianDB[sub][i] = sti.ToDB(v)
		}
	}

	frame := wsFrame{
		Entry:       it.Entry,
		Index:       it.Index,
		Progress:    it.Progress,
		Frequencies: it.Frequencies,
		Times:       it.Times,
		MedianDB:    medianDB,
	}
	select {
	case wst.broadcast <- frame:
	default:
		select {
		case <-wst.broadcast:
		default:
		}
		select {
		case wst.broadcast <- frame:
		default:
		}
	}
	return nil
}

// Close shuts down the server and every client connection.
func (wst *WebSocketTransport) Close() error {
	wst.clientsMu.Lock()
	for client := range wst.clients {
		client.Close()
	}
	wst.clients = make(map[*websocket.Conn]bool)
	wst.clientsMu.Unlock()

	if wst.server != nil {
		return wst.server.Close()
	}
	return nil
}

var _ Transport = (*WebSocketTransport)(nil)
