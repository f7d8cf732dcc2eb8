package handlers

import (
	"context"
	"fmt"
	"html/template"
	"iter"
	"log/slog"
	"net/http"
	"strings"
	"time"

	crmwebui "github.com/mwinata/crm-web-ui"
	"github.com/mwinata/crm-web-ui/internal/models"
	"github.com/tmaxmax/go-sse"
)

// Bot represents the chat assistant behind the widget. It accepts a context and the
// session's message history, returning an iterator that yields response chunks and
// potential errors.
type Bot interface {
	Reply(ctx context.Context, history []models.ChatMessage) iter.Seq2[string, error]
}

// Store defines the interface for entity and chat persistence. List methods return whole
// collections; filtering, sorting, and grouping happen in the handlers so the store stays
// a plain record keeper.
type Store interface {
	Companies(ctx context.Context) ([]models.Company, error)
	Contacts(ctx context.Context) ([]models.Contact, error)
	Opportunities(ctx context.Context) ([]models.Opportunity, error)
	Tasks(ctx context.Context) ([]models.Task, error)

	Task(ctx context.Context, id string) (models.Task, error)
	UpdateTask(ctx context.Context, task models.Task) error
	DeleteEntity(ctx context.Context, kind models.EntityKind, id string) error

	ChatMessages(ctx context.Context, sessionID string) ([]models.ChatMessage, error)
	AddChatMessage(ctx context.Context, sessionID string, message models.ChatMessage) (string, error)
}

// IconSource resolves icon names to SVG bodies.
type IconSource interface {
	Icon(ctx context.Context, name string) ([]byte, error)
}

// Main handles the core functionality of the CRM UI, managing server-sent events, HTML
// templates, the chat socket, and interactions between the Bot and Store components.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template

	bot   Bot
	store Store
	icons IconSource

	// streaming selects between the chunked and the single bot_response reply path.
	streaming bool

	logger *slog.Logger
}

const errLoggerKey = "err"

// NewMain creates a new Main instance with the provided Bot, Store, and IconSource
// implementations. It initializes the SSE server with default configurations and parses
// the required HTML templates from the embedded filesystem. SSE clients are subscribed to
// every entity topic so open list pages receive refresh fragments for the collection they
// display.
func NewMain(bot Bot, store Store, icons IconSource, streaming bool, logger *slog.Logger) (Main, error) {
	// We parse templates from three distinct directories to separate layout, pages, and partial views
	tmpl, err := template.ParseFS(
		crmwebui.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return Main{}, err
	}

	return Main{
		sseSrv: &sse.Server{
			OnSession: func(s *sse.Session) (sse.Subscription, bool) {
				topics := []string{
					sse.DefaultTopic,
					string(models.KindCompany),
					string(models.KindContact),
					string(models.KindOpportunity),
					string(models.KindTask),
				}

				return sse.Subscription{
					Client:      s,
					LastEventID: s.LastEventID,
					Topics:      topics,
				}, true
			},
		},
		templates: tmpl,
		bot:       bot,
		store:     store,
		icons:     icons,
		streaming: streaming,
		logger:    logger.With(slog.String("module", "handlers")),
	}, nil
}

// HandleSSE serves the entity refresh event stream.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}

// publishRefresh re-renders the list fragment for the mutated entity kind and publishes
// it on that kind's topic, so open pages swap their list in place of reloading.
func (m Main) publishRefresh(ctx context.Context, kind models.EntityKind) {
	fragment, err := m.renderListFragment(ctx, kind)
	if err != nil {
		m.logger.Error("Failed to render refresh fragment",
			slog.String("kind", string(kind)),
			slog.String(errLoggerKey, err.Error()))
		return
	}

	msg := sse.Message{Type: sse.Type(string(kind))}
	msg.AppendData(fragment)
	if err := m.sseSrv.Publish(&msg, string(kind)); err != nil {
		m.logger.Error("Failed to publish refresh",
			slog.String("kind", string(kind)),
			slog.String(errLoggerKey, err.Error()))
	}
}

func (m Main) renderListFragment(ctx context.Context, kind models.EntityKind) (string, error) {
	var sb strings.Builder
	var err error

	switch kind {
	case models.KindCompany:
		var companies []models.Company
		if companies, err = m.store.Companies(ctx); err == nil {
			err = m.templates.ExecuteTemplate(&sb, "companies_list", listGroups("", companies))
		}
	case models.KindContact:
		var contacts []models.Contact
		if contacts, err = m.store.Contacts(ctx); err == nil {
			err = m.templates.ExecuteTemplate(&sb, "contacts_list", listGroups("", contacts))
		}
	case models.KindOpportunity:
		var opps []models.Opportunity
		if opps, err = m.store.Opportunities(ctx); err == nil {
			err = m.templates.ExecuteTemplate(&sb, "opportunities_list", listGroups("", opps))
		}
	case models.KindTask:
		var tasks []models.Task
		if tasks, err = m.store.Tasks(ctx); err == nil {
			err = m.templates.ExecuteTemplate(&sb, "tasks_list", listGroups("", tasks))
		}
	default:
		return "", fmt.Errorf("unknown entity kind %q", kind)
	}
	if err != nil {
		return "", err
	}
	return sb.String(), nil
}

// Shutdown gracefully terminates the Main instance's SSE server. It broadcasts a close
// message to all connected clients and waits up to 5 seconds for connections to
// terminate. After the timeout, any remaining connections are forcefully closed.
func (m Main) Shutdown(ctx context.Context) error {
	e := &sse.Message{Type: sse.Type("closeRefresh")}
	// We create a close event that complies with SSE spec requiring data
	e.AppendData("bye")

	// We ignore the error here since we're shutting down anyway
	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}
