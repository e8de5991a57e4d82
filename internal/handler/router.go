package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/cms-api/internal/middleware"
	"github.com/noah-isme/cms-api/internal/models"
)

// RouterDeps carries everything the route table binds.
type RouterDeps struct {
	Verifier    middleware.TokenVerifier
	Notices     *NoticeHandler
	Software    *SoftwareHandler
	Users       *UserHandler
	Auth        *AuthHandler
	Health      *MetricsHandler
	Audit       middleware.AuditRecorder
	ViewLimiter *middleware.ClientLimiter
	Logger      *zap.Logger
}

// route is one entry of the access table. Root routes are mounted outside
// the API prefix.
type route struct {
	method   string
	path     string
	root     bool
	access   middleware.RouteAccess
	handlers []gin.HandlerFunc
}

var (
	noticeManagers   = []models.Role{models.RoleAdmin, models.RoleNoticeManager}
	softwareManagers = []models.Role{models.RoleAdmin, models.RoleSoftwareManager}
	departmentReader = []models.Role{models.RoleAdmin, models.RoleSoftwareManager, models.RoleDepartmentManager}
)

func routes(d RouterDeps) []route {
	audit := func(action, resource string) gin.HandlerFunc {
		return middleware.Audit(d.Audit, d.Logger, action, resource)
	}
	public := middleware.PublicAccess()
	authed := middleware.Authenticated()
	notices := middleware.RequireAnyRole(noticeManagers...)
	software := middleware.RequireAnyRole(softwareManagers...)
	admin := middleware.RequireAnyRole(models.RoleAdmin)

	return []route{
		{"GET", "/health", true, public, []gin.HandlerFunc{d.Health.Health}},
		{"GET", "/ready", true, public, []gin.HandlerFunc{d.Health.Ready}},
		{"GET", "/metrics", true, public, []gin.HandlerFunc{d.Health.Prometheus}},

		{"GET", "/auth/me", false, authed, []gin.HandlerFunc{d.Auth.Me}},
		{"POST", "/auth/session", false, authed, []gin.HandlerFunc{d.Auth.Session}},

		{"GET", "/notices", false, authed, []gin.HandlerFunc{d.Notices.Feed}},
		{"GET", "/notices/count", false, authed, []gin.HandlerFunc{d.Notices.Count}},
		{"GET", "/notices/admin", false, notices, []gin.HandlerFunc{d.Notices.Admin}},
		{"POST", "/notices/expire-sweep", false, admin, []gin.HandlerFunc{audit(models.AuditActionNoticeSweep, "notices"), d.Notices.ExpireSweep}},
		{"GET", "/notices/:id", false, authed, []gin.HandlerFunc{d.Notices.Get}},
		{"POST", "/notices/:id/view", false, authed, []gin.HandlerFunc{middleware.RateLimit(d.ViewLimiter), d.Notices.View}},
		{"POST", "/notices", false, notices, []gin.HandlerFunc{audit(models.AuditActionNoticeCreate, "notices"), d.Notices.Create}},
		{"PUT", "/notices/:id", false, notices, []gin.HandlerFunc{audit(models.AuditActionNoticeUpdate, "notices"), d.Notices.Update}},
		{"DELETE", "/notices/:id", false, notices, []gin.HandlerFunc{audit(models.AuditActionNoticeDelete, "notices"), d.Notices.Delete}},
		{"POST", "/notices/:id/publish", false, notices, []gin.HandlerFunc{audit(models.AuditActionNoticeState, "notices"), d.Notices.Publish}},
		{"POST", "/notices/:id/hide", false, notices, []gin.HandlerFunc{audit(models.AuditActionNoticeState, "notices"), d.Notices.Hide}},
		{"POST", "/notices/:id/expire", false, notices, []gin.HandlerFunc{audit(models.AuditActionNoticeState, "notices"), d.Notices.Expire}},

		{"GET", "/softwares", false, authed, []gin.HandlerFunc{d.Software.List}},
		{"GET", "/softwares/costs", false, software, []gin.HandlerFunc{d.Software.Costs}},
		{"GET", "/softwares/export", false, software, []gin.HandlerFunc{d.Software.Export}},
		{"GET", "/softwares/low-availability", false, authed, []gin.HandlerFunc{d.Software.LowAvailability}},
		{"GET", "/softwares/expiring", false, authed, []gin.HandlerFunc{d.Software.Expiring}},
		{"GET", "/softwares/department/:departmentId", false, middleware.RequireAnyRole(departmentReader...), []gin.HandlerFunc{d.Software.ByDepartment}},
		{"GET", "/softwares/manager/:managerId", false, authed, []gin.HandlerFunc{d.Software.ByManager}},
		{"GET", "/softwares/:id", false, authed, []gin.HandlerFunc{d.Software.Get}},
		{"POST", "/softwares", false, software, []gin.HandlerFunc{audit(models.AuditActionSoftwareCreate, "softwares"), d.Software.Create}},
		{"PUT", "/softwares/:id", false, software, []gin.HandlerFunc{audit(models.AuditActionSoftwareUpdate, "softwares"), d.Software.Update}},
		{"PATCH", "/softwares/:id/usage", false, software, []gin.HandlerFunc{audit(models.AuditActionSoftwareUsage, "softwares"), d.Software.UpdateUsage}},
		{"POST", "/softwares/:id/deactivate", false, software, []gin.HandlerFunc{audit(models.AuditActionSoftwareUpdate, "softwares"), d.Software.Deactivate}},
		{"DELETE", "/softwares/:id", false, software, []gin.HandlerFunc{audit(models.AuditActionSoftwareDelete, "softwares"), d.Software.Delete}},

		{"GET", "/users/me/tabs", false, authed, []gin.HandlerFunc{d.Users.MyTabs}},
		{"PUT", "/users/me/tabs", false, authed, []gin.HandlerFunc{d.Users.UpdateMyTabs}},
		{"GET", "/users", false, admin, []gin.HandlerFunc{d.Users.List}},
		{"DELETE", "/users/inactive", false, admin, []gin.HandlerFunc{d.Users.PruneInactive}},
		{"GET", "/users/:id", false, admin, []gin.HandlerFunc{d.Users.Get}},
		{"POST", "/users", false, admin, []gin.HandlerFunc{audit(models.AuditActionUserCreate, "users"), d.Users.Create}},
		{"PUT", "/users/:id", false, admin, []gin.HandlerFunc{audit(models.AuditActionUserUpdate, "users"), d.Users.Update}},
		{"POST", "/users/:id/deactivate", false, admin, []gin.HandlerFunc{audit(models.AuditActionUserDeactivate, "users"), d.Users.Deactivate}},
	}
}

// Register mounts every route with its access gate. API routes live under prefix.
func Register(engine *gin.Engine, prefix string, d RouterDeps) {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	api := engine.Group(prefix)
	for _, rt := range routes(d) {
		chain := append([]gin.HandlerFunc{middleware.Gate(d.Verifier, rt.access)}, rt.handlers...)
		if rt.root {
			engine.Handle(rt.method, rt.path, chain...)
			continue
		}
		api.Handle(rt.method, rt.path, chain...)
	}
}
