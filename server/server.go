// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package server exposes bound forms over HTTP so a browser (or a test) can
// drive them: type into fields, move the map and submit.
package server

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jcodagnone/geoassist/assist"
	"github.com/jcodagnone/geoassist/form"
	"github.com/jcodagnone/geoassist/geocode"
	"github.com/jcodagnone/geoassist/spatial"
)

// Config configures the HTTP server.
type Config struct {
	Addr string
	// CORSOrigins lists the allowed origins. Empty allows every origin.
	CORSOrigins []string
}

type session struct {
	id         string
	doc        *form.Document
	controller *assist.Controller
	recorder   *form.Recorder
	created    time.Time
}

type Server struct {
	provider geocode.Provider
	binder   *assist.Binder
	cfg      Config

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewServer(provider geocode.Provider, binder *assist.Binder, cfg Config) *Server {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:8080"
	}

	return &Server{
		provider: provider,
		binder:   binder,
		cfg:      cfg,
		sessions: make(map[string]*session),
	}
}

// Router builds the gin engine serving the API.
func (s *Server) Router() *gin.Engine {
	r := gin.Default()

	corsCfg := cors.DefaultConfig()
	if len(s.cfg.CORSOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = s.cfg.CORSOrigins
	}

	corsCfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions}
	r.Use(cors.New(corsCfg))

	r.POST("/api/forms", s.createForm)
	r.GET("/api/forms/:id", s.getForm)
	r.POST("/api/forms/:id/input", s.input)
	r.POST("/api/forms/:id/submit", s.submit)
	r.POST("/api/forms/:id/map", s.moveMap)
	r.GET("/api/forms/:id/submissions", s.listSubmissions)
	r.DELETE("/api/forms/:id", s.deleteForm)
	r.GET("/api/geocode", s.geocode)

	return r
}

func (s *Server) Run() error {
	log.Printf("Serving bound forms on http://%s", s.cfg.Addr)

	return s.Router().Run(s.cfg.Addr)
}

// Close unbinds every form.
func (s *Server) Close() {
	s.mu.Lock()
	s.sessions = make(map[string]*session)
	s.mu.Unlock()

	s.binder.Close()
}

type createFormRequest struct {
	HTML    string         `json:"html" binding:"required"`
	Element string         `json:"element" binding:"required"`
	Options assist.Options `json:"options"`
}

func (s *Server) createForm(ctx *gin.Context) {
	var req createFormRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	doc, err := form.ParseString(req.HTML)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "parsing html: " + err.Error()})

		return
	}

	element, err := doc.Find(req.Element)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	recorder := &form.Recorder{}
	doc.SetSubmitter(recorder)

	c, err := s.binder.Bind(doc, element, req.Options, s.provider)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, assist.ErrInvalidOptions) || errors.Is(err, form.ErrNoScope) {
			status = http.StatusBadRequest
		}

		ctx.JSON(status, gin.H{"error": err.Error()})

		return
	}

	sess := &session{
		id:         uuid.NewString(),
		doc:        doc,
		controller: c,
		recorder:   recorder,
		created:    time.Now(),
	}

	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()

	ctx.JSON(http.StatusCreated, gin.H{"id": sess.id, "map": c.Map() != nil})
}

func (s *Server) session(ctx *gin.Context) (*session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[ctx.Param("id")]
	s.mu.RUnlock()

	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "form not found"})
	}

	return sess, ok
}

// MapView is the map state reported for a form.
type MapView struct {
	Center spatial.Point `json:"center"`
	Zoom   float64       `json:"zoom"`
}

// FormView is the representation of a bound form.
type FormView struct {
	ID           string            `json:"id"`
	State        assist.State      `json:"state"`
	Fields       map[string]string `json:"fields"`
	ErrorVisible bool              `json:"error_visible"`
	Map          *MapView          `json:"map,omitempty"`
	HTML         string            `json:"html"`
	Created      time.Time         `json:"created"`
}

func (s *Server) view(sess *session) FormView {
	c := sess.controller
	opts := c.Options()
	scope := c.Scope()

	fields := make(map[string]string)

	for name, selector := range map[string]string{
		"latitude":  opts.LatitudeSelector,
		"longitude": opts.LongitudeSelector,
		"zoom":      opts.ZoomSelector,
		"viewport":  opts.ViewportSelector,
	} {
		if v, ok := scope.Value(form.MustCompile(selector)); ok {
			fields[name] = v
		}
	}

	v := FormView{
		ID:           sess.id,
		State:        c.State(),
		Fields:       fields,
		ErrorVisible: scope.Visible(form.MustCompile(opts.ErrorSelector)),
		HTML:         sess.doc.String(),
		Created:      sess.created,
	}

	if m := c.Map(); m != nil {
		v.Map = &MapView{Center: m.Center(), Zoom: m.Zoom()}
	}

	return v
}

func (s *Server) getForm(ctx *gin.Context) {
	sess, ok := s.session(ctx)
	if !ok {
		return
	}

	ctx.JSON(http.StatusOK, s.view(sess))
}

type inputRequest struct {
	Selector string `json:"selector" binding:"required"`
	Value    string `json:"value"`
	Event    string `json:"event" binding:"omitempty,oneof=input change"`
}

func (s *Server) input(ctx *gin.Context) {
	sess, ok := s.session(ctx)
	if !ok {
		return
	}

	var req inputRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	sel, err := form.Compile(req.Selector)
	if err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	nodes := sess.controller.Scope().Find(sel)
	if len(nodes) == 0 {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "no field matches " + req.Selector})

		return
	}

	typ := form.Input
	if req.Event != "" {
		typ = form.EventType(strings.ToLower(req.Event))
	}

	sess.doc.SetValue(nodes[0], req.Value)

	if _, err := sess.doc.Dispatch(ctx.Request.Context(), nodes[0], typ); err != nil {
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})

		return
	}

	ctx.JSON(http.StatusOK, gin.H{"state": sess.controller.State()})
}

func (s *Server) submit(ctx *gin.Context) {
	sess, ok := s.session(ctx)
	if !ok {
		return
	}

	ev, err := sess.doc.Dispatch(ctx.Request.Context(), sess.controller.Scope().Root(), form.Submit)
	if err != nil {
		ctx.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})

		return
	}

	status := http.StatusOK
	if ev.DefaultPrevented() {
		status = http.StatusAccepted
	}

	ctx.JSON(status, gin.H{"held": ev.DefaultPrevented(), "state": sess.controller.State()})
}

type mapRequest struct {
	Lat  float64  `json:"lat" binding:"gte=-90,lte=90"`
	Lng  float64  `json:"lng" binding:"gte=-180,lte=180"`
	Zoom *float64 `json:"zoom" binding:"omitempty,gte=0,lte=21"`
}

func (s *Server) moveMap(ctx *gin.Context) {
	sess, ok := s.session(ctx)
	if !ok {
		return
	}

	var req mapRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})

		return
	}

	m := sess.controller.Map()
	if m == nil {
		ctx.JSON(http.StatusConflict, gin.H{"error": "map assistance is disabled for this form"})

		return
	}

	m.SetCenter(spatial.Point{Lat: req.Lat, Lng: req.Lng})

	if req.Zoom != nil {
		m.SetZoom(*req.Zoom)
	}

	ctx.JSON(http.StatusOK, MapView{Center: m.Center(), Zoom: m.Zoom()})
}

func (s *Server) listSubmissions(ctx *gin.Context) {
	sess, ok := s.session(ctx)
	if !ok {
		return
	}

	ctx.JSON(http.StatusOK, sess.recorder.Submissions())
}

func (s *Server) deleteForm(ctx *gin.Context) {
	s.mu.Lock()
	sess, ok := s.sessions[ctx.Param("id")]
	delete(s.sessions, ctx.Param("id"))
	s.mu.Unlock()

	if !ok {
		ctx.JSON(http.StatusNotFound, gin.H{"error": "form not found"})

		return
	}

	s.binder.Unbind(sess.controller.Element())
	ctx.Status(http.StatusNoContent)
}

func geocodeStatus(err error) int {
	switch {
	case geocode.IsNotFoundError(err):
		return http.StatusNotFound
	case geocode.IsRateLimitError(err):
		return http.StatusTooManyRequests
	case geocode.IsQuotaExceededError(err):
		return http.StatusServiceUnavailable
	case geocode.IsTimeoutError(err):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) geocode(ctx *gin.Context) {
	address := strings.TrimSpace(ctx.Query("address"))
	if address == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "address query parameter is required"})

		return
	}

	req := geocode.NewRequest(address, ctx.Query("locality"), ctx.Query("postal_code"), ctx.Query("country"))

	res, err := s.provider.Geocode(ctx.Request.Context(), req)
	if err != nil {
		ctx.JSON(geocodeStatus(err), gin.H{"error": err.Error(), "status": geocode.StatusOf(err)})

		return
	}

	ctx.JSON(http.StatusOK, res)
}
