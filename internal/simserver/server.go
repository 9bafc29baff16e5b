package simserver

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/edusync/examroom-client/internal/api"
	"github.com/edusync/examroom-client/internal/config"
	"github.com/edusync/examroom-client/internal/protocol"
)

// devSecret signs the simulator's tokens. The client never verifies
// them; a production server has real key management.
const devSecret = "examroom-simulator-dev-secret"

// Server is the development stand-in for the exam backend: the HTTP
// boundary the client consumes plus the real-time hub. It speaks the
// full wire protocol so every client component can be exercised without
// the production service.
type Server struct {
	cfg      *config.Config
	log      zerolog.Logger
	store    *Store
	hub      *Hub
	upgrader websocket.Upgrader
}

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allow-list permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

func New(cfg *config.Config, log zerolog.Logger) *Server {
	store := NewStore()
	store.Seed()
	return &Server{
		cfg:      cfg,
		log:      log.With().Str("component", "simserver").Logger(),
		store:    store,
		hub:      NewHub(log, cfg.WarningLead, 3*cfg.HeartbeatInterval),
		upgrader: buildUpgrader(cfg.AllowedOrigins),
	}
}

// Hub exposes the real-time core, mainly for tests.
func (s *Server) Hub() *Hub { return s.hub }

// Store exposes the in-memory records, mainly for tests.
func (s *Server) Store() *Store { return s.store }

// Router builds the gin engine with every route the client consumes.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(s.cfg.SimGinMode)
	r := gin.New()
	r.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(s.cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = s.cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	r.Use(cors.New(corsConfig))

	r.POST("/auth/login", s.login)
	r.GET("/exams", s.listExams)
	r.POST("/exams", s.createExam)
	r.GET("/exams/:exam_id", s.getExam)
	r.GET("/exams/:exam_id/resources", s.listResources)
	r.POST("/exams/:exam_id/resources", s.uploadResource)
	r.POST("/works/upload", s.uploadWork)
	r.GET("/ws", s.websocketUpgrade)

	return r
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Role     string `json:"role" binding:"required,oneof=student professor"`
}

// login accepts any credentials and issues a signed token whose claims
// carry the participant identity the client announces on join.
func (s *Server) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "email, password and role are required"})
		return
	}

	local := req.Email
	if i := strings.IndexByte(local, '@'); i > 0 {
		local = local[:i]
	}

	claims := jwt.MapClaims{
		"studentId": local,
		"matricule": "MAT-" + strings.ToUpper(local),
		"role":      req.Role,
		"exp":       time.Now().Add(24 * time.Hour).Unix(),
		"iat":       time.Now().Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(devSecret))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "token signing failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token})
}

func (s *Server) listExams(c *gin.Context) {
	c.JSON(http.StatusOK, s.store.ListExams())
}

func (s *Server) createExam(c *gin.Context) {
	var req api.CreateExamRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "titre is required"})
		return
	}
	id := s.store.CreateExam(req.Title, req.Description)
	c.JSON(http.StatusCreated, s.store.GetExam(id))
}

func (s *Server) getExam(c *gin.Context) {
	examID, err := strconv.ParseInt(c.Param("exam_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid exam ID"})
		return
	}
	exam := s.store.GetExam(examID)
	if exam == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "exam not found"})
		return
	}
	c.JSON(http.StatusOK, exam)
}

func (s *Server) listResources(c *gin.Context) {
	examID, err := strconv.ParseInt(c.Param("exam_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid exam ID"})
		return
	}
	c.JSON(http.StatusOK, s.store.ListResources(examID))
}

// uploadResource attaches a subject or attachment file. Files are
// recorded by name only; the simulator serves no binaries.
func (s *Server) uploadResource(c *gin.Context) {
	examID, err := strconv.ParseInt(c.Param("exam_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "invalid exam ID"})
		return
	}
	if s.store.GetExam(examID) == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "exam not found"})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "file is required"})
		return
	}
	kind := api.ResourceKind(c.PostForm("kind"))
	if kind != api.ResourceSubject && kind != api.ResourceAttachment {
		kind = api.ResourceAttachment
	}

	s.store.AddResource(examID, api.Resource{
		Kind:     kind,
		FileName: file.Filename,
		URL:      "/uploads/" + file.Filename,
	})
	c.JSON(http.StatusCreated, gin.H{"status": "ok"})
}

// uploadWork receives a student submission and notifies the exam room.
func (s *Server) uploadWork(c *gin.Context) {
	examID, err := strconv.ParseInt(c.PostForm("examId"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "examId is required"})
		return
	}
	studentID := c.PostForm("id_etud")
	if studentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"message": "id_etud is required"})
		return
	}

	// Submissions after the deadline are rejected server-side; the
	// client's gate is advisory only.
	if endAt := s.hub.SessionEndAt(examID); !endAt.IsZero() && time.Now().After(endAt) {
		c.JSON(http.StatusForbidden, gin.H{"message": "time expired, submission rejected"})
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "multipart form required"})
		return
	}
	files := form.File["files"]
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": "at least one file is required"})
		return
	}

	names := make([]string, 0, len(files))
	for _, f := range files {
		names = append(names, f.Filename)
	}
	count := s.store.AddWork(examID, Work{
		StudentID: studentID,
		Matricule: c.PostForm("matricule"),
		Name:      c.PostForm("nom"),
		FileNames: names,
	})

	s.log.Info().Int64("exam_id", examID).Str("student_id", studentID).Int("files", count).Msg("Work received")
	s.hub.Broadcast(examID, protocol.EventFileSubmitted, protocol.FileSubmittedPayload{
		ExamID:    examID,
		StudentID: studentID,
		FileCount: count,
	})

	c.JSON(http.StatusOK, gin.H{"status": "received", "files": count})
}

func (s *Server) websocketUpgrade(c *gin.Context) {
	ws, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	go s.hub.ServeConn(ws)
}
