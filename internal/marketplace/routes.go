package marketplace

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nao1215/marketplace/pkg/middleware"
)

// ドキュメントのコレクション名。既存データとの互換のため名前は変えない。
const (
	collectionCourse       = "viewCourse"
	collectionAdminBalance = "adminBalance"
	collectionUpdate       = "update"
	collectionOrder        = "allOrder"
	collectionDollarRate   = "dollarRate"
	collectionDesign       = "graphicDesign"
	collectionReport       = "report"
	collectionSupport      = "get-support"
	collectionNotification = "allNotification"
	collectionBanner       = "dashboard-banner"
)

// route はHTTPメソッド・パス・アクセスポリシー・ハンドラの組。
type route struct {
	method  string
	path    string
	policy  middleware.Policy
	handler gin.HandlerFunc
}

// routes はサーバーが公開する全ルートを返す。
func (s *Server) routes() []route {
	public := middleware.PolicyPublic
	member := middleware.PolicyMemberOrAdmin
	admin := middleware.PolicyAdminOnly

	return []route{
		// 公開
		{http.MethodGet, "/", public, handleRoot},
		{http.MethodGet, "/health", public, handleHealth},
		{http.MethodGet, "/course", public, s.handleList(collectionCourse)},
		{http.MethodGet, "/update", public, s.handleList(collectionUpdate)},
		{http.MethodGet, "/update/:id", public, s.handleGet(collectionUpdate)},
		{http.MethodGet, "/banner", public, s.handleList(collectionBanner)},
		{http.MethodGet, "/dollarRate", public, s.handleList(collectionDollarRate)},
		{http.MethodPut, "/user/:email", public, s.handleLogin()},
		{http.MethodPut, "/googleUser/:email", public, s.handleLogin()},
		{http.MethodPut, "/updateUser/:email", public, s.handleUpdateProfile()},

		// 会員以上
		{http.MethodGet, "/get-notification", member, s.handleList(collectionNotification)},
		{http.MethodGet, "/userInfo", member, s.handleGetOwnProfile()},
		{http.MethodPut, "/userInfo", member, s.handleUpdateOwnProfile()},
		{http.MethodPost, "/facebookBoost", member, s.handleInsert(collectionOrder)},
		{http.MethodPost, "/promote", member, s.handleInsert(collectionOrder)},
		{http.MethodPost, "/pageSetup", member, s.handleInsert(collectionOrder)},
		{http.MethodPost, "/recover", member, s.handleInsert(collectionOrder)},
		{http.MethodPost, "/design", member, s.handleInsert(collectionOrder)},
		{http.MethodGet, "/all-orders", member, s.handleOwnOrders()},
		{http.MethodGet, "/order-details/:id", member, s.handleGet(collectionOrder)},
		{http.MethodGet, "/design", member, s.handleList(collectionDesign)},
		{http.MethodPost, "/report", member, s.handleInsert(collectionReport)},
		{http.MethodPost, "/get-support", member, s.handleInsert(collectionSupport)},
		{http.MethodPut, "/balance", member, s.handleAddBalance()},

		// 管理者
		{http.MethodPut, "/admin/update-userInfo/:email", admin, s.handleAdminUpdateUser()},
		{http.MethodGet, "/admin/admin-panel", admin, s.handleListPrincipals()},
		{http.MethodPut, "/admin/make-member", admin, s.handleSetRole(middleware.RoleMember)},
		{http.MethodPut, "/admin/make-admin", admin, s.handleSetRole(middleware.RoleAdmin)},
		{http.MethodPut, "/admin/update-balance", admin, s.handleSetField(collectionAdminBalance, "balance", "balance")},
		{http.MethodGet, "/admin-balance", admin, s.handleList(collectionAdminBalance)},
		{http.MethodPost, "/admin/add-update", admin, s.handleInsert(collectionUpdate)},
		{http.MethodDelete, "/admin/delete-update", admin, s.handleDelete(collectionUpdate)},
		{http.MethodPost, "/admin/post-banner", admin, s.handleInsert(collectionBanner)},
		{http.MethodPost, "/admin/post-design", admin, s.handleInsert(collectionDesign)},
		{http.MethodPut, "/admin/support-solve", admin, s.handleSetField(collectionSupport, "solve", "solve")},
		{http.MethodGet, "/admin/allSupport", admin, s.handleList(collectionSupport)},
		{http.MethodPut, "/admin/report-solve", admin, s.handleSetField(collectionReport, "solve", "solve")},
		{http.MethodGet, "/admin/allReport", admin, s.handleList(collectionReport)},
		{http.MethodPost, "/admin/add-notification", admin, s.handleInsert(collectionNotification)},
		{http.MethodPut, "/admin/updateNote", admin, s.handleSetField(collectionNotification, "message", "p")},
		{http.MethodDelete, "/admin/deleteNot", admin, s.handleDelete(collectionNotification)},
		{http.MethodPut, "/admin/updateDollarRate", admin, s.handleSetField(collectionDollarRate, "rate", "dollarRate")},
		{http.MethodGet, "/admin/allOrder", admin, s.handleList(collectionOrder)},
		{http.MethodPut, "/admin/orderStatus/:id", admin, s.handleSetByParam(collectionOrder)},
	}
}

// setupRoutes はAPIルーティングを設定する。
// 公開ルートはゲートを通さず、ヘッダーの読み取りもユーザー参照も行わない。
func (s *Server) setupRoutes() {
	for _, r := range s.routes() {
		if r.policy == middleware.PolicyPublic {
			s.router.Handle(r.method, r.path, r.handler)
			continue
		}
		s.router.Handle(r.method, r.path, s.gate.Require(r.policy), r.handler)
	}
}

// handleRoot は稼働確認用の文字列を返す。
func handleRoot(c *gin.Context) {
	c.String(http.StatusOK, "Server is running")
}

// handleHealth はヘルスチェックに応答する。
func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "marketplace"})
}
