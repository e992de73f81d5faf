package talent

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/iota-uz/iota-talent/modules/talent/domain/checkin"
	"github.com/iota-uz/iota-talent/modules/talent/domain/milestone"
	"github.com/iota-uz/iota-talent/modules/talent/domain/reference"
	"github.com/iota-uz/iota-talent/modules/talent/domain/snapshot"
	"github.com/iota-uz/iota-talent/modules/talent/domain/tenure"
	"github.com/iota-uz/iota-talent/modules/talent/infrastructure/persistence"
	"github.com/iota-uz/iota-talent/modules/talent/infrastructure/persistence/inmem"
	"github.com/iota-uz/iota-talent/modules/talent/services"
	"github.com/iota-uz/iota-talent/pkg/application"
	"github.com/iota-uz/iota-talent/pkg/authz"
	"github.com/iota-uz/iota-talent/pkg/eventbus"
	"github.com/iota-uz/iota-talent/pkg/outbox"
	obus "github.com/iota-uz/iota-talent/pkg/outbox/dispatchers/eventbus"
)

var (
	ErrNoDatabase = errors.New("talent: no database pool configured")
	ErrOutboxBus  = errors.New("talent: the outbox relay needs an event bus that reports handler errors")
)

type ModuleOptions struct {
	// Store replaces every Postgres repository with the in-memory store.
	Store *inmem.Store
	// Redis enables the reference lookup cache.
	Redis        *redis.Client
	ReferenceTTL time.Duration
	// Authorize is the default field-group predicate. Nil denies every
	// gated field group unless the actor carries the admin override.
	Authorize authz.Predicate
	// Outbox records events in talent_outbox inside their transaction and
	// registers an *outbox.Relay and *outbox.Cleaner that deliver and prune
	// them. Ignored with Store.
	Outbox         bool
	RelayOptions   outbox.RelayOptions
	CleanerOptions outbox.CleanerOptions
}

func NewModule(opts *ModuleOptions) application.Module {
	m := &Module{}
	if opts != nil {
		m.opts = *opts
	}
	return m
}

type Module struct {
	opts ModuleOptions
}

type repositories struct {
	assignments tenure.AssignmentRepository
	employment  tenure.EmploymentRepository
	checkIns    checkin.Repository
	milestones  milestone.Repository
	snapshots   snapshot.Repository
	references  reference.Repository
	tx          services.Transactor
}

func (m *Module) repositories(app application.Application) (repositories, error) {
	if s := m.opts.Store; s != nil {
		return repositories{
			assignments: s.AssignmentTenures(),
			employment:  s.EmploymentTenures(),
			checkIns:    s.CheckIns(),
			milestones:  s.Milestones(),
			snapshots:   s.Snapshots(),
			references:  s.References(),
			tx:          s,
		}, nil
	}
	if app.DB() == nil {
		return repositories{}, ErrNoDatabase
	}
	var refs reference.Repository = persistence.NewReferenceRepository()
	if m.opts.Redis != nil {
		refs = persistence.NewCachedReferenceRepository(refs, m.opts.Redis, m.opts.ReferenceTTL, app.Logger().WithField("component", "talent.references"))
	}
	return repositories{
		assignments: persistence.NewAssignmentTenureRepository(),
		employment:  persistence.NewEmploymentTenureRepository(),
		checkIns:    persistence.NewCheckInRepository(),
		milestones:  persistence.NewMilestoneRepository(),
		snapshots:   persistence.NewSnapshotRepository(),
		references:  refs,
		tx:          persistence.NewTransactor(app.DB()),
	}, nil
}

func (m *Module) Register(app application.Application) error {
	repos, err := m.repositories(app)
	if err != nil {
		return err
	}
	authorize := m.opts.Authorize
	if authorize == nil {
		authorize = authz.DenyAll
	}

	opts := services.Options{
		Logger:    app.Logger().WithField("module", "talent"),
		Publisher: app.EventPublisher(),
		Location:  app.Location(),
	}
	if m.opts.Outbox && m.opts.Store == nil {
		if err := m.registerOutbox(app); err != nil {
			return err
		}
		opts.Outbox = outbox.NewPublisher(outbox.DefaultTable)
	}
	tenures := services.NewTenureService(repos.assignments, repos.employment, repos.tx, opts)
	checkIns := services.NewCheckInService(repos.checkIns, repos.tx, authorize, opts)
	detector := services.NewChangeDetector(opts)
	snapshots := services.NewSnapshotService(repos.snapshots, repos.references, detector, repos.tx, opts)
	engine := services.NewExecutionEngine(services.ExecutionDeps{
		Snapshots:  snapshots,
		Tenures:    tenures,
		Employment: repos.employment,
		CheckIns:   repos.checkIns,
		Milestones: repos.milestones,
		References: repos.references,
		Tx:         repos.tx,
		Authorize:  authorize,
	}, opts)

	app.RegisterServices(tenures, checkIns, detector, snapshots, engine)
	subscribeAuditLog(app.EventPublisher(), app.Logger().WithField("component", "talent.audit"))
	return nil
}

func (m *Module) registerOutbox(app application.Application) error {
	bus, ok := app.EventPublisher().(eventbus.EventBusWithError)
	if !ok {
		return ErrOutboxBus
	}
	relayOpts := m.opts.RelayOptions
	if relayOpts.Logger == nil {
		relayOpts.Logger = app.Logger().WithField("component", "talent.outbox")
	}
	relay, err := outbox.NewRelay(app.DB(), outbox.DefaultTable, obus.New(bus, services.DecodeEvent), relayOpts)
	if err != nil {
		return err
	}
	cleanerOpts := m.opts.CleanerOptions
	if cleanerOpts.Logger == nil {
		cleanerOpts.Logger = relayOpts.Logger
	}
	if cleanerOpts.MaxAttempts == 0 {
		cleanerOpts.MaxAttempts = relayOpts.MaxAttempts
	}
	cleaner, err := outbox.NewCleaner(app.DB(), outbox.DefaultTable, cleanerOpts)
	if err != nil {
		return err
	}
	app.RegisterServices(relay, cleaner)
	return nil
}

func (m *Module) Name() string {
	return "talent"
}

// subscribeAuditLog writes one line per committed domain event.
func subscribeAuditLog(bus eventbus.EventBus, log *logrus.Entry) {
	bus.Subscribe(func(_ context.Context, e *services.AssignmentTenureChangedEvent) {
		log.WithFields(logrus.Fields{"event_id": e.EventID, "subject_id": e.SubjectID, "assignment_id": e.AssignmentID, "action": e.Action}).Info("talent.event.assignment_tenure_changed")
	})
	bus.Subscribe(func(_ context.Context, e *services.EmploymentTenureChangedEvent) {
		log.WithFields(logrus.Fields{"event_id": e.EventID, "subject_id": e.SubjectID, "action": e.Action}).Info("talent.event.employment_tenure_changed")
	})
	bus.Subscribe(func(_ context.Context, e *services.CheckInCompletedEvent) {
		log.WithFields(logrus.Fields{"event_id": e.EventID, "check_in_id": e.CheckInID, "subject_id": e.SubjectID, "side": e.Side, "state": e.State}).Info("talent.event.check_in_completed")
	})
	bus.Subscribe(func(_ context.Context, e *services.CheckInFinalizedEvent) {
		log.WithFields(logrus.Fields{"event_id": e.EventID, "check_in_id": e.CheckInID, "subject_id": e.SubjectID}).Info("talent.event.check_in_finalized")
	})
	bus.Subscribe(func(_ context.Context, e *services.SnapshotCreatedEvent) {
		log.WithFields(logrus.Fields{"event_id": e.EventID, "subject_id": e.Subject()}).Info("talent.event.snapshot_created")
	})
	bus.Subscribe(func(_ context.Context, e *services.SnapshotExecutedEvent) {
		log.WithFields(logrus.Fields{"event_id": e.EventID, "snapshot_id": e.SnapshotID, "subject_id": e.SubjectID}).Info("talent.event.snapshot_executed")
	})
}
