// Package app wires the provenance services from configuration and manages
// the lifetime of one CLI command: the store session, the operation record,
// the metadata snapshot upload and the metrics export.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"prov-go/internal/archive"
	"prov-go/internal/config"
	"prov-go/internal/doctor"
	"prov-go/internal/encryption"
	"prov-go/internal/gateway"
	"prov-go/internal/metrics"
	"prov-go/internal/model"
	"prov-go/internal/prov"
	"prov-go/internal/store"
	"prov-go/internal/workspace"
)

// Options describe the command an App is created for.
type Options struct {
	// Command names the CLI command, e.g. "dataset add".
	Command    string
	Parameters string
	// Mutating commands are recorded in the operation history and upload a
	// metadata snapshot on Close.
	Mutating bool
	// SkipVersionCheck allows opening a store that is behind the archive,
	// which is what restoring it requires.
	SkipVersionCheck bool
	// Version is the tool version recorded as software agent.
	Version  string
	LogLevel slog.Level
	Clock    prov.Clock
	// Encryptor replaces the one configured in [encryption] when set.
	Encryptor encryption.Encryptor
}

// App is the layer between the CLI and the provenance services.
type App struct {
	cfg       *config.Config
	opts      Options
	clock     prov.Clock
	logger    *slog.Logger
	logFile   *os.File
	store     *store.Store
	workspace *workspace.Workspace
	archive   archive.Archive
	encryptor encryption.Encryptor
	metrics   *metrics.Metrics
	ops       *OperationLog
	op        *Operation

	activities *gateway.ActivityGateway
	datasets   *gateway.DatasetGateway
	plans      *gateway.PlanGateway

	datasetSvc  *prov.DatasetService
	activitySvc *prov.ActivityService
	doctor      *doctor.Runner
}

// New creates a fully wired App. The caller must call Close.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	clock := opts.Clock
	if clock == nil {
		clock = prov.RealClock{}
	}
	started := clock.Now()

	logger, logFile, err := newLogger(cfg.LogDir, started.UTC().Format("20060102T150405Z"), opts.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	a := &App{cfg: cfg, opts: opts, clock: clock, logger: logger, logFile: logFile}

	if err := a.init(ctx); err != nil {
		a.closeResources()
		return nil, err
	}
	a.op = NewOperation(opts.Command, opts.Parameters, started)
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	s, err := store.NewStoreFromConfig(a.cfg.Store, a.cfg.ProjectID, a.logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	a.store = s
	a.ops = NewOperationLog(s)

	root := a.cfg.Workspace.Root
	if root == "" {
		root = "."
	}
	if a.workspace, err = workspace.New(root, a.cfg.Workspace.Ignore); err != nil {
		return fmt.Errorf("opening workspace: %w", err)
	}

	if len(a.cfg.Archives) > 0 {
		if a.archive, err = archive.NewArchiveFromConfig(ctx, a.cfg.Archives[0]); err != nil {
			return fmt.Errorf("creating archive: %w", err)
		}
		if !a.opts.SkipVersionCheck {
			if err := a.checkVersion(ctx); err != nil {
				return err
			}
		}
	}

	if a.opts.Encryptor != nil {
		a.encryptor = a.opts.Encryptor
	} else if a.encryptor, err = encryption.NewEncryptorFromConfig(a.cfg.Encryption); err != nil {
		return fmt.Errorf("creating encryptor: %w", err)
	}
	if a.metrics, err = metrics.New(); err != nil {
		return err
	}

	a.activities = gateway.NewActivityGateway(s, a.clock)
	a.datasets = gateway.NewDatasetGateway(s)
	a.plans = gateway.NewPlanGateway(s)

	provenance := prov.NewDatasetsProvenance(a.datasets, a.clock, a.logger, a.metrics)
	a.datasetSvc = prov.NewDatasetService(provenance, a.workspace, s, a.clock, a.logger)
	a.activitySvc = prov.NewActivityService(a.activities, a.plans, s, a.clock, prov.UUIDGenerator{}, a.logger, a.metrics)

	a.doctor = doctor.NewRunner(doctor.All(doctor.Gateways{
		Activities: a.activities,
		Datasets:   a.datasets,
		Plans:      a.plans,
	}), s, a.logger)
	a.doctor.OnResult(a.metrics.DoctorProblems)
	return nil
}

// checkVersion refuses to work on a store that is older than its archived
// snapshot, since the next upload would overwrite newer metadata.
func (a *App) checkVersion(ctx context.Context) error {
	remote, err := a.archive.Version(ctx, a.cfg.ProjectID)
	if err != nil {
		return fmt.Errorf("checking archived metadata version: %w", err)
	}
	local, err := a.ops.LastSeq(ctx)
	if err != nil {
		return fmt.Errorf("checking local metadata version: %w", err)
	}
	if remote > local {
		return fmt.Errorf("local metadata is behind archive %s (local=%d, remote=%d): run 'prov metadata restore'",
			a.archive.Name(), local, remote)
	}
	return nil
}

// Datasets returns the dataset service.
func (a *App) Datasets() *prov.DatasetService { return a.datasetSvc }

// Activities returns the activity service.
func (a *App) Activities() *prov.ActivityService { return a.activitySvc }

// Doctor returns the consistency check runner.
func (a *App) Doctor() *doctor.Runner { return a.doctor }

// Workspace returns the project working tree.
func (a *App) Workspace() *workspace.Workspace { return a.workspace }

func (a *App) Logger() *slog.Logger { return a.logger }

func (a *App) Config() *config.Config { return a.cfg }

// Creator returns the configured user, or nil when none is set.
func (a *App) Creator() *model.Person {
	if a.cfg.User.Name == "" {
		return nil
	}
	p := model.NewPerson(a.cfg.User.Name, a.cfg.User.Email)
	return &p
}

// Agents returns the agents recorded for an execution: the user, if known,
// and this tool.
func (a *App) Agents() []model.Agent {
	var agents []model.Agent
	if p := a.Creator(); p != nil {
		agents = append(agents, model.PersonAgent(*p))
	}
	version := a.opts.Version
	if version == "" {
		version = "dev"
	}
	return append(agents, model.SoftwareAgent("prov", version))
}

// DefaultDatadir returns the data directory assigned to a new dataset.
func (a *App) DefaultDatadir(slug string) string {
	dir := a.cfg.Workspace.DataDir
	if dir == "" {
		dir = "data"
	}
	return filepath.ToSlash(filepath.Join(dir, slug))
}

// History returns up to limit recorded operations, newest first.
func (a *App) History(ctx context.Context, limit int) ([]*Operation, error) {
	return a.ops.Recent(ctx, limit)
}

// ArchiveName returns the name of the configured archive, or "".
func (a *App) ArchiveName() string {
	if a.archive == nil {
		return ""
	}
	return a.archive.Name()
}

// Encrypted reports whether snapshots are encrypted.
func (a *App) Encrypted() bool { return a.encryptor != nil }

// BackupMetadata uploads a snapshot of the store at its current version.
func (a *App) BackupMetadata(ctx context.Context) (int64, error) {
	if a.archive == nil {
		return 0, errors.New("no archive configured")
	}
	version, err := a.ops.LastSeq(ctx)
	if err != nil {
		return 0, err
	}
	if err := a.upload(ctx, version); err != nil {
		return 0, err
	}
	return version, nil
}

// RestoreMetadata replaces the local store with the archived snapshot. The
// passphrase is only requested when snapshots are encrypted. It returns the
// restored version.
func (a *App) RestoreMetadata(ctx context.Context, passphrase func() (string, error)) (int64, error) {
	if a.archive == nil {
		return 0, errors.New("no archive configured")
	}

	tmp, err := os.CreateTemp("", "prov-restore-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if err := a.archive.Get(ctx, a.cfg.ProjectID, tmp); err != nil {
		return 0, fmt.Errorf("downloading snapshot: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return 0, fmt.Errorf("rewinding snapshot: %w", err)
	}

	var snapshot io.Reader = tmp
	if a.encryptor != nil {
		secret, err := passphrase()
		if err != nil {
			return 0, err
		}
		dec, err := a.encryptor.Unlock(secret)
		if err != nil {
			return 0, fmt.Errorf("unlocking private key: %w", err)
		}
		pr, pw := io.Pipe()
		done := make(chan struct{})
		go func() {
			defer close(done)
			pw.CloseWithError(dec.Decrypt(tmp, pw))
		}()
		defer func() {
			pr.Close()
			<-done
		}()
		snapshot = pr
	}

	if err := a.store.Restore(ctx, snapshot); err != nil {
		return 0, err
	}
	version, err := a.ops.LastSeq(ctx)
	if err != nil {
		return 0, err
	}
	a.logger.Info("metadata restored", "archive", a.archive.Name(), "version", version)
	return version, nil
}

// upload streams a snapshot of the committed store to the archive.
func (a *App) upload(ctx context.Context, version int64) error {
	tmp, err := os.CreateTemp("", "prov-snapshot-*")
	if err != nil {
		return fmt.Errorf("creating temp file for snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	if a.encryptor != nil {
		pr, pw := io.Pipe()
		done := make(chan struct{})
		go func() {
			defer close(done)
			pw.CloseWithError(a.store.Backup(ctx, pw))
		}()
		err = a.encryptor.Encrypt(pr, tmp)
		pr.Close()
		<-done
	} else {
		err = a.store.Backup(ctx, tmp)
	}
	if err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	size, err := tmp.Seek(0, io.SeekCurrent)
	if err != nil {
		return fmt.Errorf("sizing snapshot: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding snapshot: %w", err)
	}
	if err := a.archive.Put(ctx, a.cfg.ProjectID, tmp, size, version); err != nil {
		return fmt.Errorf("uploading snapshot to %s: %w", a.archive.Name(), err)
	}
	a.logger.Info("metadata archived", "archive", a.archive.Name(), "version", version, "bytes", size)
	return nil
}

// Close finishes the command. cmdErr is the command's outcome. Mutating
// commands are appended to the operation history and, when an archive is
// configured, a snapshot is uploaded with the operation's sequence number
// as version. Metrics are exported last.
func (a *App) Close(ctx context.Context, cmdErr error) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	// Anything still staged belongs to a failed operation.
	a.store.Rollback()

	if a.opts.Mutating {
		a.op.Fail(cmdErr)
		a.op.FinishedAt = a.clock.Now()
		if err := a.ops.Append(ctx, a.op); err != nil {
			keep(fmt.Errorf("recording operation: %w", err))
		} else if err := a.store.Commit(ctx); err != nil {
			keep(fmt.Errorf("recording operation: %w", err))
		} else if a.archive != nil {
			keep(a.upload(ctx, a.op.Seq))
		}
	}

	now := a.clock.Now()
	a.metrics.CommandFinished(a.opts.Command, now.Sub(a.op.StartedAt), cmdErr, now)
	if path := a.cfg.Metrics.TextfilePath; path != "" {
		keep(a.metrics.WriteTextfile(path))
	}

	keep(a.closeResources())
	return firstErr
}

func (a *App) closeResources() error {
	var err error
	if a.store != nil {
		if cerr := a.store.Close(); cerr != nil {
			err = fmt.Errorf("closing store: %w", cerr)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return err
}

// Operation returns the operation tracked for this command.
func (a *App) Operation() *Operation { return a.op }

// Compile-time check
var _ prov.Transactor = (*store.Store)(nil)
