// Package api exposes the node's transport surface: sensor event
// ingestion, the runtime calibration feed, and the semantic image stream
// for attached consumers.
package api

import (
	"encoding/binary"
	"fmt"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/russelldj/semantic-slam/calib"
	"github.com/russelldj/semantic-slam/framesync"
	"github.com/russelldj/semantic-slam/iface"
	"github.com/russelldj/semantic-slam/logger"
	"github.com/russelldj/semantic-slam/monitor"
)

// Sensor event wire format: an 8-byte big-endian unix-nano capture
// timestamp followed by the payload. Image payloads are encoded (JPEG or
// PNG) buffers; scan payloads are little-endian float32 (x,y,z) triples.
const stampHeaderLen = 8

type intrinsicsRequest struct {
	K []float64 `json:"k"`
}

// Server owns the gin routes and the set of semantic image subscribers.
// It satisfies iface.Publisher for the pipeline.
type Server struct {
	router   *gin.Engine
	store    *calib.Store
	syncer   *framesync.Synchronizer
	upgrader websocket.Upgrader

	subMu sync.RWMutex
	subs  map[*websocket.Conn]struct{}
}

func New(store *calib.Store, syncer *framesync.Synchronizer) *Server {
	s := &Server{
		store:  store,
		syncer: syncer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		subs: map[*websocket.Conn]struct{}{},
	}

	r := gin.Default()
	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})
	r.GET("/api/calibration", s.getCalibration)
	r.POST("/api/calibration/intrinsics", s.setIntrinsics)
	r.GET("/ws/image", s.imageStream)
	r.GET("/ws/scan", s.scanStream)
	r.GET("/ws/semantic", s.semanticStream)
	s.router = r
	return s
}

// Run blocks serving the API.
func (s *Server) Run(port int) error {
	return s.router.Run(fmt.Sprintf(":%d", port))
}

func (s *Server) getCalibration(c *gin.Context) {
	ext := s.store.Extrinsics()
	k := s.store.Intrinsics()
	extRows := make([][]float64, 4)
	for i := 0; i < 4; i++ {
		extRows[i] = make([]float64, 4)
		for j := 0; j < 4; j++ {
			extRows[i][j] = ext.At(i, j)
		}
	}
	kFlat := make([]float64, 0, 9)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			kFlat = append(kFlat, k.At(i, j))
		}
	}
	c.JSON(http.StatusOK, gin.H{"extrinsics": extRows, "intrinsics": kFlat})
}

func (s *Server) setIntrinsics(c *gin.Context) {
	var req intrinsicsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.store.SetIntrinsicsMatrix(req.K); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": "intrinsics updated"})
}

func (s *Server) imageStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(30 * 1024 * 1024)
	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.BinaryMessage || len(msg) <= stampHeaderLen {
			_ = conn.WriteMessage(websocket.TextMessage, []byte("expected binary stamped frame"))
			continue
		}
		stamp := time.Unix(0, int64(binary.BigEndian.Uint64(msg[:stampHeaderLen])))
		img, err := gocv.IMDecode(msg[stampHeaderLen:], gocv.IMReadColor)
		if err != nil || img.Empty() {
			// Bad frame: drop it and keep the stream alive.
			logger.Log().Error("image decode failed, frame dropped", zap.Error(err))
			monitor.FramesDropped.Inc()
			_ = img.Close()
			continue
		}
		s.syncer.AddImage(iface.ImageEvent{Image: img, Stamp: stamp})
	}
}

func (s *Server) scanStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	conn.SetReadLimit(30 * 1024 * 1024)
	for {
		mt, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if mt != websocket.BinaryMessage || len(msg) < stampHeaderLen {
			_ = conn.WriteMessage(websocket.TextMessage, []byte("expected binary stamped scan"))
			continue
		}
		payload := msg[stampHeaderLen:]
		if len(payload)%12 != 0 {
			logger.Log().Error("scan decode failed, frame dropped",
				zap.Int("payloadBytes", len(payload)))
			monitor.FramesDropped.Inc()
			continue
		}
		stamp := time.Unix(0, int64(binary.BigEndian.Uint64(msg[:stampHeaderLen])))
		points := make([]iface.PointXYZ, len(payload)/12)
		for i := range points {
			points[i] = iface.PointXYZ{
				X: math.Float32frombits(binary.LittleEndian.Uint32(payload[i*12:])),
				Y: math.Float32frombits(binary.LittleEndian.Uint32(payload[i*12+4:])),
				Z: math.Float32frombits(binary.LittleEndian.Uint32(payload[i*12+8:])),
			}
		}
		s.syncer.AddScan(iface.ScanEvent{Points: points, Stamp: stamp})
	}
}

func (s *Server) semanticStream(c *gin.Context) {
	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	s.subMu.Lock()
	s.subs[conn] = struct{}{}
	s.subMu.Unlock()
	logger.Log().Info("semantic image consumer attached")
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.dropSubscriber(conn)
}

func (s *Server) dropSubscriber(conn *websocket.Conn) {
	s.subMu.Lock()
	delete(s.subs, conn)
	s.subMu.Unlock()
	_ = conn.Close()
}

// HasSubscribers reports whether any semantic image consumer is attached.
func (s *Server) HasSubscribers() bool {
	s.subMu.RLock()
	defer s.subMu.RUnlock()
	return len(s.subs) > 0
}

// Publish encodes the decoded semantic image once and fans it out to every
// attached consumer. Called from the single pipeline goroutine.
func (s *Server) Publish(img gocv.Mat) {
	buf, err := gocv.IMEncode(gocv.JPEGFileExt, img)
	if err != nil {
		logger.Log().Error("semantic image encode failed", zap.Error(err))
		return
	}
	defer buf.Close()
	data := buf.GetBytes()

	s.subMu.RLock()
	conns := make([]*websocket.Conn, 0, len(s.subs))
	for conn := range s.subs {
		conns = append(conns, conn)
	}
	s.subMu.RUnlock()

	for _, conn := range conns {
		if err := conn.WriteMessage(websocket.BinaryMessage, data); err != nil {
			s.dropSubscriber(conn)
		}
	}
}
