package main

import (
	"database/sql"
	"time"

	"crowdship-platform/internal/httpapi"
	"crowdship-platform/internal/rbac"
	"crowdship-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc, db *sql.DB) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		if err := utils.HealthCheck(c.Request.Context(), db, 2*time.Second); err != nil {
			c.JSON(503, gin.H{"status": "degraded"})
			return
		}
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Gateway webhooks (public, signature-gated inside the handler).
	r.POST("/webhooks/chapa", h.HandleGatewayWebhook)

	// protected API group
	v1 := r.Group("/v1")
	v1.Use(authMW)
	{
		w := v1.Group("/wallet")
		{
			w.GET("/balance", h.GetBalance)
			w.GET("/transactions", h.TransactionHistory)
			w.GET("/transactions/:reference/verify", h.VerifyTransaction)
			w.POST("/deposit", h.InitiateDeposit)
			w.POST("/withdraw", h.InitiateWithdrawal)
		}

		v1.GET("/banks", h.ListBanks)

		// ADMIN routes, finance or super_admin only.
		admin := v1.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleFinance, rbac.RoleSuperAdmin))
		{
			admin.GET("/config", h.GetPlatformConfig)
			admin.PUT("/config", h.UpdatePlatformConfig)
			admin.POST("/sweep", h.TriggerSweep)
			admin.POST("/banks/sync", h.TriggerBankSync)
		}
	}
}
