/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"agent-trinity-go/internal/jobs"
	"agent-trinity-go/internal/models"
	"agent-trinity-go/internal/store"
	"agent-trinity-go/internal/trinity"
	"agent-trinity-go/internal/x402"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Server is the HTTP surface: agent registration and deployment, the offering
// catalog and the x402-gated job marketplace.
type Server struct {
	store    store.Store
	deployer *trinity.Deployer
	jobs     *jobs.Service
	payments *x402.Middleware
	http     *http.Server
}

func New(st store.Store, deployer *trinity.Deployer, jobService *jobs.Service, payments *x402.Middleware, port string) *Server {
	s := &Server{
		store:    st,
		deployer: deployer,
		jobs:     jobService,
		payments: payments,
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger())

	router.GET("/health", s.handleHealth)

	router.POST("/agents", s.handleCreateAgent)
	router.POST("/agents/:id/deploy", s.handleDeployAgent)
	router.GET("/agents/:id", s.handleGetAgent)

	router.GET("/offerings", s.handleListOfferings)
	router.POST("/offerings", s.handleCreateOffering)

	router.POST("/jobs", s.payments.Require(), s.handlePurchaseJob)
	router.GET("/jobs/:id", s.handleGetJob)
	router.POST("/jobs/:id/transition", s.handleTransitionJob)
	router.POST("/jobs/:id/rating", s.handleRateJob)

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) Start() {
	zap.L().Info("Starting HTTP server", zap.String("addr", s.http.Addr))
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Fatal("HTTP server failed", zap.Error(err))
		}
	}()
}

func (s *Server) Stop(ctx context.Context) {
	if err := s.http.Shutdown(ctx); err != nil {
		zap.L().Error("HTTP server shutdown failed", zap.Error(err))
	}
	zap.L().Info("HTTP server stopped")
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		zap.L().Info("Request handled",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)))
	}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type createAgentRequest struct {
	Name   string   `json:"name" binding:"required"`
	Skills []string `json:"skills"`
}

func (s *Server) handleCreateAgent(c *gin.Context) {
	var req createAgentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	agent, err := s.store.CreateAgent(c.Request.Context(), req.Name, req.Skills)
	if err != nil {
		zap.L().Error("Failed to create agent", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create agent"})
		return
	}
	c.JSON(http.StatusCreated, agent)
}

func (s *Server) handleDeployAgent(c *gin.Context) {
	agentId := c.Param("id")
	if _, err := s.store.GetAgent(c.Request.Context(), agentId); err != nil {
		s.renderStoreError(c, err)
		return
	}

	result := s.deployer.Deploy(c.Request.Context(), agentId)
	status := http.StatusOK
	if result.TrinityStatus != models.TrinityComplete && len(result.Errors) > 0 {
		status = http.StatusAccepted
	}
	c.JSON(status, result)
}

func (s *Server) handleGetAgent(c *gin.Context) {
	agent, err := s.store.GetAgent(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, agent)
}

type createOfferingRequest struct {
	AgentId     string `json:"agentId" binding:"required"`
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	PriceUsdc   int64  `json:"priceUsdc" binding:"required,gt=0"`
}

func (s *Server) handleCreateOffering(c *gin.Context) {
	var req createOfferingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	agent, err := s.store.GetAgent(c.Request.Context(), req.AgentId)
	if err != nil {
		s.renderStoreError(c, err)
		return
	}
	if agent.Status != models.AgentActive {
		c.JSON(http.StatusConflict, gin.H{"error": "agent must be ACTIVE to publish offerings"})
		return
	}

	offering, err := s.store.CreateOffering(c.Request.Context(), req.AgentId, req.Name, req.Description, req.PriceUsdc)
	if err != nil {
		zap.L().Error("Failed to create offering", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create offering"})
		return
	}
	c.JSON(http.StatusCreated, offering)
}

func (s *Server) handleListOfferings(c *gin.Context) {
	activeOnly := c.Query("all") == ""
	offerings, err := s.store.ListOfferings(c.Request.Context(), activeOnly)
	if err != nil {
		zap.L().Error("Failed to list offerings", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list offerings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"offerings": offerings})
}

type purchaseJobRequest struct {
	BuyerAgentId string `json:"buyerAgentId" binding:"required"`
	OfferingId   string `json:"offeringId" binding:"required"`
	Requirements string `json:"requirements"`
}

func (s *Server) handlePurchaseJob(c *gin.Context) {
	var req purchaseJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := s.jobs.Purchase(c.Request.Context(), req.BuyerAgentId, req.OfferingId, req.Requirements)
	if err != nil {
		s.renderStoreError(c, err)
		return
	}

	payer, _ := c.Get(x402.ContextKeyPayer)
	zap.L().Info("Paid job created",
		zap.String("job_id", job.Id),
		zap.Any("payer", payer))
	c.JSON(http.StatusCreated, job)
}

func (s *Server) handleGetJob(c *gin.Context) {
	job, err := s.store.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.renderStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

type transitionJobRequest struct {
	AgentId      string           `json:"agentId" binding:"required"`
	Target       models.JobStatus `json:"target" binding:"required"`
	Deliverables string           `json:"deliverables"`
	FailedReason string           `json:"failedReason"`
}

func (s *Server) handleTransitionJob(c *gin.Context) {
	var req transitionJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := s.jobs.Transition(c.Request.Context(), c.Param("id"), req.AgentId, req.Target, req.Deliverables, req.FailedReason)
	if err != nil {
		s.renderStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

type rateJobRequest struct {
	AgentId string `json:"agentId" binding:"required"`
	Rating  int    `json:"rating" binding:"required,min=1,max=5"`
}

func (s *Server) handleRateJob(c *gin.Context) {
	var req rateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := s.jobs.Rate(c.Request.Context(), c.Param("id"), req.AgentId, req.Rating)
	if err != nil {
		s.renderStoreError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// renderStoreError maps domain errors onto HTTP statuses: missing rows are
// 404, authorization failures 403 and any state conflict 409.
func (s *Server) renderStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, jobs.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrInvalidTransition),
		errors.Is(err, store.ErrAlreadyRated),
		errors.Is(err, store.ErrConcurrentModification),
		errors.Is(err, jobs.ErrJobExpired):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		zap.L().Error("Request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
