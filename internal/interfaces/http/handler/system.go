package handler

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	appinventory "github.com/erp/fulfillment/internal/application/inventory"
	"github.com/erp/fulfillment/internal/domain/inventory"
	"github.com/erp/fulfillment/internal/domain/shared"
	"github.com/erp/fulfillment/internal/interfaces/http/dto"
)

// Pinger reports whether a backing store is reachable
type Pinger interface {
	Ping() error
}

// SubscriptionReporter lists the handlers attached to the outbound event stream
type SubscriptionReporter interface {
	Subscriptions() []shared.SubscriptionStatus
}

// SystemHandler handles health and info endpoints
type SystemHandler struct {
	BaseHandler
	service   *appinventory.InventoryService
	pingers   map[string]Pinger
	stream    SubscriptionReporter
	name      string
	version   string
	startTime time.Time
}

// NewSystemHandler creates a new SystemHandler
func NewSystemHandler(service *appinventory.InventoryService, name, version string) *SystemHandler {
	return &SystemHandler{
		service:   service,
		pingers:   make(map[string]Pinger),
		name:      name,
		version:   version,
		startTime: time.Now(),
	}
}

// WithPinger adds a dependency checked by the health endpoint
func (h *SystemHandler) WithPinger(name string, p Pinger) *SystemHandler {
	h.pingers[name] = p
	return h
}

// WithSubscriptions reports the event stream subscribers in the info endpoint
func (h *SystemHandler) WithSubscriptions(r SubscriptionReporter) *SystemHandler {
	h.stream = r
	return h
}

// RegisterRoutes mounts the system routes
func (h *SystemHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/health", h.Health)
	rg.GET("/system/info", h.Info)
}

// HealthResponse is the body of the health endpoint
type HealthResponse struct {
	Status       string                     `json:"status"`
	Dependencies map[string]string          `json:"dependencies,omitempty"`
	Violations   []inventory.AuditViolation `json:"violations,omitempty"`
}

// Health godoc
// @ID           health
// @Summary      Health check
// @Description  Audits the ledger and pings every registered dependency. Any failure answers 503.
// @Tags         system
// @Produce      json
// @Success      200 {object} dto.Response{data=HealthResponse}
// @Failure      503 {object} dto.Response{data=HealthResponse}
// @Router       /health [get]
func (h *SystemHandler) Health(c *gin.Context) {
	resp := HealthResponse{Status: "ok"}
	if len(h.pingers) > 0 {
		resp.Dependencies = make(map[string]string, len(h.pingers))
	}
	for name, p := range h.pingers {
		if err := p.Ping(); err != nil {
			resp.Dependencies[name] = err.Error()
			resp.Status = "degraded"
			continue
		}
		resp.Dependencies[name] = "ok"
	}
	resp.Violations = h.service.Audit(c.Request.Context())
	if len(resp.Violations) > 0 {
		resp.Status = "degraded"
	}

	status := http.StatusOK
	if resp.Status != "ok" {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, dto.Response{Success: status == http.StatusOK, Data: resp})
}

// SystemInfoResponse represents the system information response
type SystemInfoResponse struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	GoVersion string `json:"go_version"`
	Uptime    string `json:"uptime"`
	Orders    int    `json:"orders"`
	SKUs      int    `json:"skus"`

	Subscribers []shared.SubscriptionStatus `json:"subscribers,omitempty"`
}

// Info godoc
// @ID           systemInfo
// @Summary      System information
// @Description  Returns process information and event subscriber statistics
// @Tags         system
// @Produce      json
// @Success      200 {object} dto.Response{data=SystemInfoResponse}
// @Router       /system/info [get]
func (h *SystemHandler) Info(c *gin.Context) {
	ctx := c.Request.Context()
	info := SystemInfoResponse{
		Name:      h.name,
		Version:   h.version,
		GoVersion: runtime.Version(),
		Uptime:    time.Since(h.startTime).Round(time.Second).String(),
		Orders:    len(h.service.ListOrders(ctx)),
		SKUs:      len(h.service.ListSKUs(ctx)),
	}
	if h.stream != nil {
		info.Subscribers = h.stream.Subscriptions()
	}
	h.Success(c, info)
}
