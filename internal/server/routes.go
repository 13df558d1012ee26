package server

import (
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/danmuck/gridwire/internal/capture"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// maxDecodeBody bounds POST /decode; hex doubles the datagram limit.
const maxDecodeBody = 512 * 1024

func (s *Server) registerRoutes() {
	r := s.router
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.started).String(),
			"service": s.node,
			"version": Version,
		})
	})
	r.GET("/ready", func(c *gin.Context) {
		ready := s.codec != nil
		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{
			"ready":    ready,
			"uptime":   time.Since(s.started).String(),
			"service":  s.node,
			"messages": s.messageCount(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/messages", s.listMessages)
	r.GET("/messages/:name", s.getMessage)
	r.POST("/decode", s.decode)
	r.GET("/captures", s.listBuckets)
	r.GET("/captures/:bucket", s.listCaptures)
	r.GET("/captures/:bucket/:id", s.getCapture)
	r.GET("/peers", s.listPeers)
}

func (s *Server) messageCount() int {
	if s.codec == nil {
		return 0
	}
	return s.codec.Registry().Len()
}

func (s *Server) listMessages(c *gin.Context) {
	if s.codec == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no codec loaded"})
		return
	}
	descs := s.codec.Registry().List()
	out := make([]DescriptorView, 0, len(descs))
	for _, d := range descs {
		out = append(out, DescribeDescriptor(d, false))
	}
	c.JSON(http.StatusOK, gin.H{"messages": out})
}

func (s *Server) getMessage(c *gin.Context) {
	if s.codec == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no codec loaded"})
		return
	}
	d, ok := s.codec.Registry().ByName(c.Param("name"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown message: " + c.Param("name")})
		return
	}
	c.JSON(http.StatusOK, DescribeDescriptor(d, true))
}

// ParseHex accepts hex with arbitrary whitespace and an optional 0x prefix.
func ParseHex(text string) ([]byte, error) {
	clean := strings.Join(strings.Fields(text), "")
	clean = strings.TrimPrefix(strings.TrimPrefix(clean, "0x"), "0X")
	if clean == "" {
		return nil, errors.New("empty datagram")
	}
	return hex.DecodeString(clean)
}

// decode accepts a hex body, or raw bytes with Content-Type
// application/octet-stream.
func (s *Server) decode(c *gin.Context) {
	if s.codec == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no codec loaded"})
		return
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxDecodeBody+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(body) > maxDecodeBody {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "body too large"})
		return
	}
	raw := body
	if c.ContentType() != "application/octet-stream" {
		raw, err = ParseHex(string(body))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid hex: " + err.Error()})
			return
		}
	}
	m, err := s.codec.Decode(raw)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, DescribeDecodeError(err))
		return
	}
	c.JSON(http.StatusOK, DescribeMessage(m))
}

func (s *Server) listBuckets(c *gin.Context) {
	if s.captures == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "capture disabled"})
		return
	}
	buckets, err := s.captures.Buckets()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"buckets": buckets})
}

type captureView struct {
	ID        uint64       `json:"id"`
	At        time.Time    `json:"at"`
	Direction string       `json:"direction"`
	Remote    string       `json:"remote"`
	Raw       string       `json:"raw"`
	Decoded   *MessageView `json:"decoded,omitempty"`
	Error     string       `json:"error,omitempty"`
}

func (s *Server) describeCapture(e capture.Entry) captureView {
	v := captureView{
		ID:        e.ID,
		At:        e.At,
		Direction: string(e.Direction),
		Remote:    e.Remote,
		Raw:       hex.EncodeToString(e.Raw),
	}
	if s.codec == nil {
		return v
	}
	m, err := s.codec.Decode(e.Raw)
	if err != nil {
		v.Error = err.Error()
		return v
	}
	mv := DescribeMessage(m)
	v.Decoded = &mv
	return v
}

func captureStatus(err error) int {
	switch {
	case errors.Is(err, capture.ErrBucketNotFound), errors.Is(err, capture.ErrRecordNotFound):
		return http.StatusNotFound
	case errors.Is(err, capture.ErrInvalidBucket):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) listCaptures(c *gin.Context) {
	if s.captures == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "capture disabled"})
		return
	}
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	entries, err := s.captures.List(c.Param("bucket"), limit)
	if err != nil {
		c.JSON(captureStatus(err), gin.H{"error": err.Error()})
		return
	}
	out := make([]captureView, 0, len(entries))
	for _, e := range entries {
		out = append(out, s.describeCapture(e))
	}
	c.JSON(http.StatusOK, gin.H{"bucket": c.Param("bucket"), "records": out})
}

func (s *Server) getCapture(c *gin.Context) {
	if s.captures == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "capture disabled"})
		return
	}
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	e, err := s.captures.Get(c.Param("bucket"), id)
	if err != nil {
		c.JSON(captureStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, s.describeCapture(e))
}

func (s *Server) listPeers(c *gin.Context) {
	if s.peers == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no circuit attached"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"peers": s.peers.List()})
}
