package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickjm/patsearch/internal/record"
	"github.com/patrickjm/patsearch/internal/source"
)

// Backend runs searches on named sources. engine.Service implements it.
type Backend interface {
	Search(ctx context.Context, name, query string, maxPages int) record.ResultSet
	List() ([]source.Descriptor, error)
}

// Server answers requests from many connections at once. Each Search runs on
// its own connection goroutine with its own browser session, so searches do
// not serialize behind each other.
type Server struct {
	backend   Backend
	logger    *slog.Logger
	startedAt time.Time
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	inFlight  atomic.Int64
	served    atomic.Uint64
	stop      chan struct{}
	stopOnce  sync.Once
}

func NewServer(backend Backend, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		backend:   backend,
		logger:    logger,
		startedAt: NowUTC(),
		ctx:       ctx,
		cancel:    cancel,
		stop:      make(chan struct{}),
	}
}

func (s *Server) Serve(l net.Listener) error {
	defer s.wg.Wait()
	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-s.stop:
				return nil
			default:
			}
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConn(conn)
		}()
	}
}

// Stop cancels in-flight searches and makes Serve return.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.cancel()
		close(s.stop)
	})
}

func (s *Server) Done() <-chan struct{} {
	return s.stop
}

func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.stop:
			// Unblock an idle Decode; responses still get written.
			_ = conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			return
		}
		resp := s.handleRequest(req)
		_ = enc.Encode(resp)
		if req.Method == MethodStop {
			return
		}
		select {
		case <-s.stop:
			return
		default:
		}
	}
}

func (s *Server) handleRequest(req Request) Response {
	result, err := s.dispatch(req)
	if err != nil {
		return Response{ID: req.ID, Error: &RespError{Message: err.Error()}}
	}
	if result == nil {
		return Response{ID: req.ID}
	}
	b, err := json.Marshal(result)
	if err != nil {
		return Response{ID: req.ID, Error: &RespError{Message: err.Error()}}
	}
	return Response{ID: req.ID, Result: b}
}

func (s *Server) dispatch(req Request) (any, error) {
	switch req.Method {
	case MethodSearch:
		var params SearchParams
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, fmt.Errorf("bad search params: %w", err)
		}
		return s.search(params), nil
	case MethodSources:
		return s.backend.List()
	case MethodStatus:
		return StatusResult{
			PID:       os.Getpid(),
			StartedAt: s.startedAt,
			InFlight:  int(s.inFlight.Load()),
			Served:    s.served.Load(),
		}, nil
	case MethodStop:
		s.logger.Info("stop requested")
		s.Stop()
		return nil, nil
	default:
		return nil, errors.New("unknown method")
	}
}

func (s *Server) search(params SearchParams) record.ResultSet {
	s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	start := time.Now()
	rs := s.backend.Search(s.ctx, params.Source, params.Query, params.MaxPages)
	s.served.Add(1)
	s.logger.Info("search served",
		"source", params.Source,
		"status", rs.Status,
		"count", rs.Count,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return rs
}

// ServeSocket listens on socketPath until the server is stopped or ctx ends.
// The info file, when infoPath is set, is written once listening and removed
// on return.
func ServeSocket(ctx context.Context, socketPath, infoPath string, server *Server) error {
	if err := os.MkdirAll(filepath.Dir(socketPath), 0o755); err != nil {
		return err
	}
	if err := os.RemoveAll(socketPath); err != nil {
		return err
	}
	l, err := net.Listen("unix", socketPath)
	if err != nil {
		return err
	}
	defer l.Close()
	defer os.Remove(socketPath)
	if infoPath != "" {
		exe, modTime, _ := CurrentBinaryInfo()
		info := Info{PID: os.Getpid(), Socket: socketPath, StartedAt: server.startedAt, BinaryPath: exe, BinaryModTime: modTime}
		if err := WriteInfo(infoPath, info); err != nil {
			return err
		}
		defer os.Remove(infoPath)
	}
	go func() {
		select {
		case <-ctx.Done():
			server.Stop()
		case <-server.stop:
		}
		_ = l.Close()
	}()
	server.logger.Info("listening", "socket", socketPath)
	return server.Serve(l)
}

func WriteInfo(path string, info Info) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(info, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func NowUTC() time.Time {
	return time.Now().UTC()
}
