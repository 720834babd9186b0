// Package introspect 提供本地诊断 HTTP 服务
//
// 该服务运行在本地端口，以 JSON 形式输出自动对等状态，用于调试和监控。
// 默认绑定到 127.0.0.1，不暴露到网络。
//
// 端点：
//   - GET /debug/introspect           - 完整诊断报告
//   - GET /debug/introspect/node      - 本地节点
//   - GET /debug/introspect/neighbors - 入站/出站邻居
//   - GET /debug/introspect/peers     - 已验证与已知节点
//   - GET /metrics                    - Prometheus 指标（启用指标时）
//   - GET /debug/pprof/*              - Go pprof 端点
//   - GET /health                     - 健康检查
package introspect

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"sync"
	"time"

	"github.com/mr-tron/base58"

	"github.com/dep2p/go-autopeering/pkg/lib/log"
	"github.com/dep2p/go-autopeering/pkg/types"
)

var logger = log.Logger("introspect")

// DefaultAddr 默认监听地址
const DefaultAddr = "127.0.0.1:6060"

// Source 诊断数据来源
type Source interface {
	IsRunning() bool
	LocalPeer() *types.Peer
	InboundNeighbors() []*types.Peer
	OutboundNeighbors() []*types.Peer
	VerifiedPeers() []*types.Peer
	KnownPeers() []*types.Peer
}

// Config 服务配置
type Config struct {
	// Addr 监听地址，默认 "127.0.0.1:6060"
	Addr string

	// Source 必需的数据来源
	Source Source

	// Metrics 可选的指标处理器，挂载到 /metrics
	Metrics http.Handler
}

// Server 本地诊断 HTTP 服务
type Server struct {
	source  Source
	metrics http.Handler
	addr    string

	server   *http.Server
	listener net.Listener

	running bool
	mu      sync.Mutex
}

// New 创建诊断服务
func New(cfg Config) *Server {
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	return &Server{
		source:  cfg.Source,
		metrics: cfg.Metrics,
		addr:    addr,
	}
}

// Handler 返回路由，便于测试或嵌入已有 HTTP 服务
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/debug/introspect", s.handleIntrospect)
	mux.HandleFunc("/debug/introspect/node", s.handleNode)
	mux.HandleFunc("/debug/introspect/neighbors", s.handleNeighbors)
	mux.HandleFunc("/debug/introspect/peers", s.handlePeers)

	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}

	// pprof 端点
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	mux.HandleFunc("/health", s.handleHealth)
	return mux
}

// Start 启动服务
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.listener = listener
	s.server = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("诊断服务异常退出", "error", err)
		}
	}()

	s.running = true
	logger.Info("诊断服务已启动", "addr", listener.Addr().String())
	return nil
}

// Stop 停止服务
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false

	if err := s.server.Shutdown(ctx); err != nil {
		logger.Error("关闭诊断服务失败", "error", err)
		return err
	}
	logger.Info("诊断服务已停止")
	return nil
}

// Addr 返回实际监听地址
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// ============================================================================
//                              响应结构
// ============================================================================

// PeerInfo 节点描述
type PeerInfo struct {
	ID        string            `json:"id"`
	PublicKey string            `json:"public_key"`
	IP        string            `json:"ip"`
	Services  map[string]string `json:"services,omitempty"`
}

// NeighborsInfo 邻居集合
type NeighborsInfo struct {
	Inbound  []PeerInfo `json:"inbound"`
	Outbound []PeerInfo `json:"outbound"`
}

// PeersInfo 发现层节点
type PeersInfo struct {
	Verified []PeerInfo `json:"verified"`
	Known    []PeerInfo `json:"known"`
}

// Report 完整诊断报告
type Report struct {
	Running   bool          `json:"running"`
	Timestamp time.Time     `json:"timestamp"`
	Node      *PeerInfo     `json:"node,omitempty"`
	Neighbors NeighborsInfo `json:"neighbors"`
	Peers     PeersInfo     `json:"peers"`
}

func toPeerInfo(p *types.Peer) PeerInfo {
	info := PeerInfo{
		ID:        p.ID().String(),
		PublicKey: base58.Encode(p.PublicKey()),
		IP:        p.IP().String(),
	}
	if services := p.Services(); len(services) > 0 {
		info.Services = make(map[string]string, len(services))
		for name, ep := range services {
			info.Services[string(name)] = net.JoinHostPort(p.IP().String(), strconv.Itoa(ep.Port)) + "/" + ep.Network
		}
	}
	return info
}

func toPeerInfos(peers []*types.Peer) []PeerInfo {
	out := make([]PeerInfo, 0, len(peers))
	for _, p := range peers {
		out = append(out, toPeerInfo(p))
	}
	return out
}

// ============================================================================
//                              HTTP 处理器
// ============================================================================

func (s *Server) report() Report {
	r := Report{
		Running:   s.source.IsRunning(),
		Timestamp: time.Now(),
		Neighbors: s.neighbors(),
		Peers:     s.peers(),
	}
	if local := s.source.LocalPeer(); local != nil {
		info := toPeerInfo(local)
		r.Node = &info
	}
	return r
}

func (s *Server) neighbors() NeighborsInfo {
	return NeighborsInfo{
		Inbound:  toPeerInfos(s.source.InboundNeighbors()),
		Outbound: toPeerInfos(s.source.OutboundNeighbors()),
	}
}

func (s *Server) peers() PeersInfo {
	return PeersInfo{
		Verified: toPeerInfos(s.source.VerifiedPeers()),
		Known:    toPeerInfos(s.source.KnownPeers()),
	}
}

func (s *Server) handleIntrospect(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	s.writeJSON(w, s.report())
}

func (s *Server) handleNode(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	local := s.source.LocalPeer()
	if local == nil {
		http.Error(w, "Node not started", http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, toPeerInfo(local))
}

func (s *Server) handleNeighbors(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	s.writeJSON(w, s.neighbors())
}

func (s *Server) handlePeers(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	s.writeJSON(w, s.peers())
}

// handleHealth 协议未运行时返回 503
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	health := struct {
		Status    string    `json:"status"`
		Timestamp time.Time `json:"timestamp"`
	}{
		Status:    "ok",
		Timestamp: time.Now(),
	}
	status := http.StatusOK
	if !s.source.IsRunning() {
		health.Status = "stopped"
		status = http.StatusServiceUnavailable
	}
	s.writeJSONStatus(w, status, health)
}

// ============================================================================
//                              辅助方法
// ============================================================================

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// writeJSON 写入 JSON 响应
func (s *Server) writeJSON(w http.ResponseWriter, data interface{}) {
	s.writeJSONStatus(w, http.StatusOK, data)
}

func (s *Server) writeJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		logger.Error("JSON 编码失败", "error", err)
	}
}
