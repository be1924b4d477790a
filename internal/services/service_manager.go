package services

import (
	"log/slog"
	"time"

	"github.com/SAP-F-2025/content-import-service/internal/cache"
	"github.com/SAP-F-2025/content-import-service/internal/events"
	"github.com/SAP-F-2025/content-import-service/internal/repositories"
)

// ServiceManager hands the HTTP layer every import service, built once over
// shared collaborators
type ServiceManager interface {
	Parser() ImportParser
	Preview() PreviewService
	Processor() BatchProcessor
	Categories() CategoryMatcher
	Reports() ReportService
}

// Dependencies are the stores and adapters the services run on
type Dependencies struct {
	Documents  repositories.DocumentStore
	Jobs       repositories.JobStore
	Backups    repositories.BackupRepository
	Audits     repositories.AuditRepository
	History    repositories.MappingHistoryRepository
	Cache      cache.CacheService
	Publisher  events.EventPublisher
	Dictionary *MedicalDictionary
}

type ManagerConfig struct {
	Processor ProcessorConfig
	Parser    ParserConfig
	Matcher   MatcherConfig
}

type serviceManager struct {
	parser    ImportParser
	preview   PreviewService
	processor BatchProcessor
	matcher   CategoryMatcher
	reports   ReportService
}

func NewServiceManager(deps Dependencies, config ManagerConfig, logger *slog.Logger) ServiceManager {
	if deps.Dictionary == nil {
		deps.Dictionary = MustDefaultMedicalDictionary()
	}
	if config.Matcher.CacheTTL <= 0 {
		config.Matcher.CacheTTL = 5 * time.Minute
	}

	audit := NewAuditService(deps.Audits, deps.Publisher, logger)
	backup := NewBackupService(deps.Backups, deps.Documents, logger)
	matcher := NewCategoryMatcher(deps.Documents, deps.History, deps.Cache, deps.Dictionary, audit, logger, config.Matcher)
	engine := NewValidationEngine()
	committer := NewStorageCommitter(deps.Documents, matcher, backup, logger)

	return &serviceManager{
		parser:    NewImportParser(logger, config.Parser),
		preview:   NewPreviewService(engine, matcher, logger),
		processor: NewBatchProcessor(engine, committer, deps.Jobs, backup, audit, logger, config.Processor),
		matcher:   matcher,
		reports:   NewReportService(logger),
	}
}

func (m *serviceManager) Parser() ImportParser        { return m.parser }
func (m *serviceManager) Preview() PreviewService     { return m.preview }
func (m *serviceManager) Processor() BatchProcessor   { return m.processor }
func (m *serviceManager) Categories() CategoryMatcher { return m.matcher }
func (m *serviceManager) Reports() ReportService      { return m.reports }
