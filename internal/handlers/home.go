package handlers

import (
	"cmp"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mwinata/crm-web-ui/internal/models"
	"github.com/mwinata/crm-web-ui/internal/query"
)

// listParams carries the query-string controls shared by every entity page.
type listParams struct {
	Q     string
	Sort  string
	Dir   query.Direction
	Group string
}

func listParamsFrom(r *http.Request) listParams {
	q := r.URL.Query()
	return listParams{
		Q:     strings.TrimSpace(q.Get("q")),
		Sort:  q.Get("sort"),
		Dir:   query.ParseDirection(q.Get("dir")),
		Group: q.Get("group"),
	}
}

type listPageData[T any] struct {
	Active string
	Params listParams
	Groups []query.Group[T]
	Total  int
}

// listGroups wraps items in a single anonymous group when no group key is requested, so
// the list templates always iterate groups.
func listGroups[T any](key string, items []T) []query.Group[T] {
	if key == "" {
		return []query.Group[T]{{Items: items}}
	}
	return nil
}

type homePageData struct {
	Active        string
	CompanyCount  int
	ContactCount  int
	OpenTaskCount int
	PipelineTotal float64
}

// HandleHome renders the dashboard with collection counts and the open pipeline total.
func (m Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	companies, err := m.store.Companies(ctx)
	if err != nil {
		m.logger.Error("Failed to get companies", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	contacts, err := m.store.Contacts(ctx)
	if err != nil {
		m.logger.Error("Failed to get contacts", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	opps, err := m.store.Opportunities(ctx)
	if err != nil {
		m.logger.Error("Failed to get opportunities", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	tasks, err := m.store.Tasks(ctx)
	if err != nil {
		m.logger.Error("Failed to get tasks", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := homePageData{
		Active:       "home",
		CompanyCount: len(companies),
		ContactCount: len(contacts),
	}
	for _, t := range tasks {
		if !t.Done {
			data.OpenTaskCount++
		}
	}
	for _, o := range opps {
		if o.Stage != models.StageWon && o.Stage != models.StageLost {
			data.PipelineTotal += o.Amount
		}
	}

	if err := m.templates.ExecuteTemplate(w, "home.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleCompanies renders the company list page.
func (m Main) HandleCompanies(w http.ResponseWriter, r *http.Request) {
	params := listParamsFrom(r)

	companies, err := m.store.Companies(r.Context())
	if err != nil {
		m.logger.Error("Failed to get companies", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	companies = query.Filter(companies, func(c models.Company) bool {
		return query.MatchFold(params.Q, c.Name, c.Industry, c.City)
	})
	query.SortBy(companies, func(a, b models.Company) int {
		switch params.Sort {
		case "industry":
			return strings.Compare(a.Industry, b.Industry)
		case "city":
			return strings.Compare(a.City, b.City)
		case "created":
			return a.CreatedAt.Compare(b.CreatedAt)
		default:
			return strings.Compare(a.Name, b.Name)
		}
	}, params.Dir)

	groups := listGroups(params.Group, companies)
	if groups == nil {
		groups = query.GroupBy(companies, func(c models.Company) string {
			if params.Group == "city" {
				return c.City
			}
			return c.Industry
		})
	}

	data := listPageData[models.Company]{
		Active: "companies",
		Params: params,
		Groups: groups,
		Total:  len(companies),
	}
	if err := m.templates.ExecuteTemplate(w, "companies.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleContacts renders the contact list page.
func (m Main) HandleContacts(w http.ResponseWriter, r *http.Request) {
	params := listParamsFrom(r)

	contacts, err := m.store.Contacts(r.Context())
	if err != nil {
		m.logger.Error("Failed to get contacts", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	contacts = query.Filter(contacts, func(c models.Contact) bool {
		return query.MatchFold(params.Q, c.Name, c.Email, c.Title)
	})
	query.SortBy(contacts, func(a, b models.Contact) int {
		switch params.Sort {
		case "email":
			return strings.Compare(a.Email, b.Email)
		case "created":
			return a.CreatedAt.Compare(b.CreatedAt)
		default:
			return strings.Compare(a.Name, b.Name)
		}
	}, params.Dir)

	groups := listGroups(params.Group, contacts)
	if groups == nil {
		groups = query.GroupBy(contacts, func(c models.Contact) string { return c.CompanyID })
	}

	data := listPageData[models.Contact]{
		Active: "contacts",
		Params: params,
		Groups: groups,
		Total:  len(contacts),
	}
	if err := m.templates.ExecuteTemplate(w, "contacts.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleOpportunities renders the opportunity list page.
func (m Main) HandleOpportunities(w http.ResponseWriter, r *http.Request) {
	params := listParamsFrom(r)
	stage := r.URL.Query().Get("stage")

	opps, err := m.store.Opportunities(r.Context())
	if err != nil {
		m.logger.Error("Failed to get opportunities", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	opps = query.Filter(opps, func(o models.Opportunity) bool {
		if stage != "" && o.Stage != models.Stage(stage) {
			return false
		}
		return query.MatchFold(params.Q, o.Name, string(o.Stage))
	})
	query.SortBy(opps, func(a, b models.Opportunity) int {
		switch params.Sort {
		case "amount":
			return cmp.Compare(a.Amount, b.Amount)
		case "close":
			return a.CloseDate.Compare(b.CloseDate)
		default:
			return strings.Compare(a.Name, b.Name)
		}
	}, params.Dir)

	groups := listGroups(params.Group, opps)
	if groups == nil {
		groups = query.GroupBy(opps, func(o models.Opportunity) string { return string(o.Stage) })
	}

	data := listPageData[models.Opportunity]{
		Active: "opportunities",
		Params: params,
		Groups: groups,
		Total:  len(opps),
	}
	if err := m.templates.ExecuteTemplate(w, "opportunities.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleTasks renders the task list page. The done query parameter filters by completion
// state ("open" or "done").
func (m Main) HandleTasks(w http.ResponseWriter, r *http.Request) {
	params := listParamsFrom(r)
	done := r.URL.Query().Get("done")

	tasks, err := m.store.Tasks(r.Context())
	if err != nil {
		m.logger.Error("Failed to get tasks", slog.String(errLoggerKey, err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	tasks = query.Filter(tasks, func(t models.Task) bool {
		switch done {
		case "open":
			if t.Done {
				return false
			}
		case "done":
			if !t.Done {
				return false
			}
		}
		return query.MatchFold(params.Q, t.Title, t.Owner)
	})
	query.SortBy(tasks, func(a, b models.Task) int {
		switch params.Sort {
		case "title":
			return strings.Compare(a.Title, b.Title)
		case "owner":
			return strings.Compare(a.Owner, b.Owner)
		default:
			return a.Due.Compare(b.Due)
		}
	}, params.Dir)

	groups := listGroups(params.Group, tasks)
	if groups == nil {
		groups = query.GroupBy(tasks, func(t models.Task) string { return t.Owner })
	}

	data := listPageData[models.Task]{
		Active: "tasks",
		Params: params,
		Groups: groups,
		Total:  len(tasks),
	}
	if err := m.templates.ExecuteTemplate(w, "tasks.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
