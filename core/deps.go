package core

import "pkt.systems/pslog"

// ServiceDeps captures the dependencies of the core service. The store
// fields are required; the rest degrade gracefully when nil.
type ServiceDeps struct {
	Assessments  AssessmentStore
	Experiments  ExperimentStore
	Repositories RepositoryStore
	Plans        PlanStore
	Feedback     FeedbackStore
	Preferences  PreferenceStore
	Stats        StatsStore

	Provider  ProviderClient
	Keys      DeployKeys
	Syncer    RepoSyncer
	Templates TemplateCatalog
	Publisher PlanPublisher
	Runner    PlanRunner
	Reporter  ReportRenderer

	EventSink EventSink
	Logger    pslog.Logger
}
