package report

import (
	"context"
	"fmt"
	"time"

	"bizflow/internal/logger"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const recentWindow = 7 * 24 * time.Hour

type Totals struct {
	Leads                int     `json:"leads" db:"leads"`
	NewLeadsRecent       int     `json:"newLeadsLast7Days" db:"new_leads_recent"`
	Submissions          int     `json:"submissions" db:"submissions"`
	SubmissionsRecent    int     `json:"submissionsLast7Days" db:"submissions_recent"`
	AverageScore         float64 `json:"averageSubmissionScore" db:"average_score"`
	BusinessAssessments  int     `json:"businessAssessments" db:"business_assessments"`
	Subscribers          int     `json:"subscribers" db:"subscribers"`
	PublishedForms       int     `json:"publishedForms" db:"published_forms"`
	ChatbotConversations int     `json:"chatbotConversations" db:"chatbot_conversations"`
}

type Dashboard struct {
	Totals
	LeadsByStatus       map[string]int `json:"leadsByStatus"`
	PostsByStatus       map[string]int `json:"postsByStatus"`
	CaseStudiesByStatus map[string]int `json:"caseStudiesByStatus"`
	GeneratedAt         time.Time      `json:"generatedAt"`
}

type statusCount struct {
	Status string `db:"status"`
	Count  int    `db:"count"`
}

type Service struct {
	db     *sqlx.DB
	logger *logger.Logger
	now    func() time.Time
}

func NewService(db *sqlx.DB, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{db: db, logger: log, now: func() time.Time { return time.Now().UTC() }}
}

// Dashboard runs its aggregate queries concurrently. Blog posts are counted
// by effective status, so elapsed scheduled posts count as published.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	now := s.now()
	since := now.Add(-recentWindow)
	d := &Dashboard{GeneratedAt: now}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.db.GetContext(ctx, &d.Totals, `
			SELECT
				(SELECT COUNT(*) FROM leads) AS leads,
				(SELECT COUNT(*) FROM leads WHERE created_at >= $1) AS new_leads_recent,
				(SELECT COUNT(*) FROM assessment_submissions) AS submissions,
				(SELECT COUNT(*) FROM assessment_submissions WHERE created_at >= $1) AS submissions_recent,
				(SELECT COALESCE(AVG(score), 0)::float8 FROM assessment_submissions) AS average_score,
				(SELECT COUNT(*) FROM business_assessments) AS business_assessments,
				(SELECT COUNT(*) FROM newsletter_subscriptions) AS subscribers,
				(SELECT COUNT(*) FROM assessment_forms WHERE published) AS published_forms,
				(SELECT COUNT(DISTINCT session_id) FROM chatbot_history) AS chatbot_conversations`, since)
	})
	g.Go(func() error {
		var err error
		d.LeadsByStatus, err = s.countBy(ctx, `SELECT status, COUNT(*) AS count FROM leads GROUP BY status`)
		return err
	})
	g.Go(func() error {
		var err error
		d.PostsByStatus, err = s.countBy(ctx, `
			SELECT CASE WHEN status = 'scheduled' AND published_at <= $1 THEN 'published' ELSE status END AS status,
				COUNT(*) AS count
			FROM blog_posts GROUP BY 1`, now)
		return err
	})
	g.Go(func() error {
		var err error
		d.CaseStudiesByStatus, err = s.countBy(ctx, `SELECT status, COUNT(*) AS count FROM case_studies GROUP BY status`)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("error build dashboard", zap.Error(err))
		return nil, fmt.Errorf("build dashboard: %w", err)
	}
	return d, nil
}

func (s *Service) countBy(ctx context.Context, query string, args ...any) (map[string]int, error) {
	var rows []statusCount
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	out := make(map[string]int, len(rows))
	for _, r := range rows {
		out[r.Status] = r.Count
	}
	return out, nil
}
