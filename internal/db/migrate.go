package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

var schema = []string{
	`CREATE EXTENSION IF NOT EXISTS pgcrypto;`,
	`CREATE TABLE IF NOT EXISTS profiles (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		email TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'user',
		password_hash TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS assessment_forms (
		id UUID PRIMARY KEY,
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		document JSONB NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		published BOOLEAN NOT NULL DEFAULT FALSE,
		version INT NOT NULL DEFAULT 1,
		created_by UUID REFERENCES profiles(id) ON DELETE SET NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_assessment_forms_status ON assessment_forms(status);`,
	`CREATE TABLE IF NOT EXISTS assessment_submissions (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		form_id UUID NOT NULL REFERENCES assessment_forms(id) ON DELETE CASCADE,
		form_version INT NOT NULL,
		answers JSONB NOT NULL,
		score INT NOT NULL DEFAULT 0,
		readiness_score INT,
		contact_name TEXT NOT NULL DEFAULT '',
		contact_email TEXT NOT NULL DEFAULT '',
		company TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_assessment_submissions_form ON assessment_submissions(form_id, created_at DESC);`,
	`CREATE TABLE IF NOT EXISTS business_assessments (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		company_name TEXT NOT NULL DEFAULT '',
		contact_email TEXT NOT NULL DEFAULT '',
		answers JSONB NOT NULL,
		readiness_score INT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS blog_categories (
		id BIGSERIAL PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	);`,
	`CREATE TABLE IF NOT EXISTS blog_tags (
		id BIGSERIAL PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL
	);`,
	`CREATE TABLE IF NOT EXISTS blog_posts (
		id BIGSERIAL PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		excerpt TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		cover_image TEXT NOT NULL DEFAULT '',
		category_id BIGINT REFERENCES blog_categories(id) ON DELETE SET NULL,
		author_id UUID REFERENCES profiles(id) ON DELETE SET NULL,
		status TEXT NOT NULL DEFAULT 'draft',
		published_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_blog_posts_status_published ON blog_posts(status, published_at DESC);`,
	`CREATE TABLE IF NOT EXISTS blog_post_tags (
		post_id BIGINT NOT NULL REFERENCES blog_posts(id) ON DELETE CASCADE,
		tag_id BIGINT NOT NULL REFERENCES blog_tags(id) ON DELETE CASCADE,
		PRIMARY KEY (post_id, tag_id)
	);`,
	`CREATE TABLE IF NOT EXISTS case_studies (
		id BIGSERIAL PRIMARY KEY,
		slug TEXT NOT NULL UNIQUE,
		title TEXT NOT NULL,
		client TEXT NOT NULL DEFAULT '',
		industry TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		challenge TEXT NOT NULL DEFAULT '',
		solution TEXT NOT NULL DEFAULT '',
		results JSONB NOT NULL DEFAULT '[]'::jsonb,
		technologies TEXT[] NOT NULL DEFAULT '{}',
		featured BOOLEAN NOT NULL DEFAULT FALSE,
		status TEXT NOT NULL DEFAULT 'draft',
		published_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS leads (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL,
		company TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		message TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT 'contact_form',
		services_interested TEXT[] NOT NULL DEFAULT '{}',
		status TEXT NOT NULL DEFAULT 'new',
		score INT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_leads_status_created ON leads(status, created_at DESC);`,
	`CREATE TABLE IF NOT EXISTS newsletter_subscriptions (
		id BIGSERIAL PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		source TEXT NOT NULL DEFAULT 'footer',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS chatbot_history (
		id BIGSERIAL PRIMARY KEY,
		session_id TEXT NOT NULL,
		message TEXT NOT NULL,
		reply TEXT NOT NULL,
		source TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE INDEX IF NOT EXISTS idx_chatbot_history_session ON chatbot_history(session_id, created_at DESC);`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id BIGSERIAL PRIMARY KEY,
		actor_id UUID,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		payload JSONB NOT NULL DEFAULT '{}'::jsonb,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
}

// Migrate creates any missing table. Every statement is idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, q := range schema {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
