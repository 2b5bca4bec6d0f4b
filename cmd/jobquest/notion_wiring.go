package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/mlopez/jobquest/config"
	"github.com/mlopez/jobquest/notion"
	"github.com/mlopez/jobquest/pipeline"
)

// wireNotion attaches the Notion-backed collaborators. Without a token
// the resume source still exists but fails with a configuration error,
// since the pipeline cannot proceed without a master resume.
func wireNotion(cfg *config.Config, deps *pipeline.Deps, log zerolog.Logger) {
	client, err := notion.New(cfg.Notion.Token, log)
	if err != nil {
		log.Debug().Err(err).Msg("notion not configured")
		deps.Resume = unavailableResume{}
		return
	}

	deps.Resume = &notionResume{client: client, pageID: cfg.Notion.MasterResumePageID}
	if cfg.Notion.SkillsDBID != "" || cfg.Notion.QATemplatesDBID != "" {
		deps.Knowledge = &notionKnowledge{client: client, cfg: cfg.Notion}
	}
	if cfg.Notion.ApplicationsDBID != "" {
		deps.Tracker = &notionTracker{client: client, databaseID: cfg.Notion.ApplicationsDBID}
	}
}

type unavailableResume struct{}

func (unavailableResume) MasterResume(context.Context) (string, error) {
	return "", errNotionUnconfigured
}

type notionResume struct {
	client *notion.Client
	pageID string
}

func (r *notionResume) MasterResume(ctx context.Context) (string, error) {
	if r.pageID == "" {
		return "", fmt.Errorf("master resume page not configured (set NOTION_MASTER_RESUME_ID)")
	}
	return r.client.PageText(ctx, r.pageID)
}

type notionKnowledge struct {
	client *notion.Client
	cfg    config.NotionConfig
}

func (k *notionKnowledge) SkillsInventory(ctx context.Context) (string, error) {
	if k.cfg.SkillsDBID == "" {
		return "", nil
	}
	return k.client.SkillsInventory(ctx, k.cfg.SkillsDBID)
}

func (k *notionKnowledge) QATemplates(ctx context.Context) (string, error) {
	if k.cfg.QATemplatesDBID == "" {
		return "", nil
	}
	return k.client.QATemplates(ctx, k.cfg.QATemplatesDBID)
}

type notionTracker struct {
	client     *notion.Client
	databaseID string
}

func (t *notionTracker) CreateApplication(ctx context.Context, rec pipeline.TrackingRecord) (string, error) {
	pageID, _, err := t.client.CreateApplication(ctx, t.databaseID, notion.ApplicationRecord{
		JobTitle: rec.JobTitle,
		Company:  rec.Company,
		URL:      rec.URL,
		Variant:  rec.Variant,
		QAText:   rec.QAText,
	})
	return pageID, err
}
