package proxyhttp

import (
	"net/http"
	"runtime/debug"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/project"
	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/resolver"
	"github.com/theCapypara/riptide-proxy/internal/riptideproxy/rplog"
)

// render executes the named template at the given status code. Rendering
// failures are logged but never themselves produce a second status page -
// the header is already sent by the time a template error would surface.
func (h *Handler) render(w http.ResponseWriter, name string, status int, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := h.Templates.set.ExecuteTemplate(w, name, data); err != nil {
		rplog.Named("proxyhttp").Sugar().Errorf("rendering %s: %v", name, err)
	}
}

func (h *Handler) ppLandingPage(w http.ResponseWriter) {
	projects, loadErrors := h.Resolver.Storage.GetAllProjects()
	chains := make([][]string, 0, len(loadErrors))
	for _, e := range loadErrors {
		chains = append(chains, e.Chain())
	}
	h.render(w, TplLandingPage, http.StatusOK, struct {
		Title       string
		BaseURL     string
		AllProjects []*project.Project
		LoadErrors  [][]string
	}{"Riptide Proxy", h.Resolver.BaseURL, projects, chains})
}

// pp500 and pp500ProjectLoad both stamp a fresh request ID onto the log
// line and the rendered page, so an operator looking at a report from a
// user can find the matching log entry without grepping by timestamp.
func (h *Handler) pp500(w http.ResponseWriter, err error) {
	reqID := uuid.New().String()
	rplog.Named("proxyhttp").Error("internal error", zap.String("request_id", reqID), zap.Error(err))
	h.render(w, Tpl500, http.StatusInternalServerError, struct {
		Title     string
		Err       error
		Trace     string
		RequestID string
	}{"Riptide Proxy - 500 Internal Server Error", err, string(debug.Stack()), reqID})
}

func (h *Handler) pp500ProjectLoad(w http.ResponseWriter, err *resolver.ProjectLoadError) {
	reqID := uuid.New().String()
	rplog.Named("proxyhttp").Sugar().Errorf("project load error [%s]: %v", reqID, err)
	h.render(w, Tpl500ProjectLoad, http.StatusInternalServerError, struct {
		Title     string
		Project   string
		Trace     []string
		RequestID string
	}{"Riptide Proxy - Error loading project", err.ProjectName, err.Chain(), reqID})
}

func (h *Handler) pp502(w http.ResponseWriter, err error) {
	h.render(w, Tpl502, http.StatusBadGateway, struct {
		Title string
		Err   error
	}{"Riptide Proxy - 502 Bad Gateway", err})
}

func (h *Handler) ppNoMainService(w http.ResponseWriter, p *project.Project) {
	h.render(w, TplNoMainService, http.StatusServiceUnavailable, struct {
		Title   string
		Project *project.Project
	}{"Riptide Proxy - No Main Service", p})
}

func (h *Handler) ppServiceNotFound(w http.ResponseWriter, p *project.Project, serviceName string) {
	h.render(w, TplServiceNotFound, http.StatusBadRequest, struct {
		Title       string
		Project     *project.Project
		ServiceName string
	}{"Riptide Proxy - Service Not Found", p, serviceName})
}

func (h *Handler) ppStartProject(w http.ResponseWriter, p *project.Project, serviceName string) {
	h.render(w, TplStartProject, http.StatusOK, struct {
		Title       string
		Project     *project.Project
		ServiceName string
	}{"Riptide Proxy - Starting...", p, serviceName})
}

func (h *Handler) ppProjectNotStarted(w http.ResponseWriter, p *project.Project, serviceName string) {
	h.render(w, TplProjectNotStarted, http.StatusServiceUnavailable, struct {
		Title       string
		Project     *project.Project
		ServiceName string
	}{"Riptide Proxy - Service Not Started", p, serviceName})
}

func (h *Handler) ppProjectNotFound(w http.ResponseWriter, projectName string) {
	h.render(w, TplProjectNotFound, http.StatusBadRequest, struct {
		Title       string
		ProjectName string
	}{"Riptide Proxy - Project Not Found", projectName})
}

func (h *Handler) ppGatewayTimeout(w http.ResponseWriter, p *project.Project, serviceName string) {
	h.render(w, TplGatewayTimeout, http.StatusGatewayTimeout, struct {
		Title       string
		Project     *project.Project
		ServiceName string
	}{"Riptide Proxy - Gateway Timeout", p, serviceName})
}
