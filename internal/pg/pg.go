// Package pg drives pg_dump and pg_restore against an apidb database and
// reads the transaction position a dump corresponds to.
package pg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/wegman-software/osm-admin/internal/config"
	"github.com/wegman-software/osm-admin/internal/logger"
	"github.com/wegman-software/osm-admin/internal/replication"
	"github.com/wegman-software/osm-admin/internal/schema"
)

// DumpTables are the tables an export reads.
var DumpTables = []schema.Table{
	schema.Nodes, schema.NodeTags,
	schema.Ways, schema.WayTags, schema.WayNodes,
	schema.Relations, schema.RelationTags, schema.RelationMembers,
	schema.Users, schema.Changesets,
}

// Params are the connection settings of the database.
type Params struct {
	Host       string
	Port       int
	Database   string
	User       string
	Password   string
	PgpassFile string
	// LogDir receives the stdout and stderr of the client tools.
	LogDir string
}

func FromConfig(cfg *config.Config) Params {
	return Params{
		Host:       cfg.DBHost,
		Port:       cfg.DBPort,
		Database:   cfg.DBName,
		User:       cfg.DBUser,
		Password:   cfg.DBPassword,
		PgpassFile: cfg.PgpassFile,
		LogDir:     cfg.VarLogDir,
	}
}

var dsnEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

// connConfig builds the pgx connection settings, taking the password from
// the pgpass file when none was given.
func (p Params) connConfig(log *zap.Logger) (*pgx.ConnConfig, error) {
	dsn := fmt.Sprintf("host='%s' port=%d dbname='%s' user='%s' sslmode=disable",
		dsnEscaper.Replace(p.Host), p.Port, dsnEscaper.Replace(p.Database), dsnEscaper.Replace(p.User))
	cc, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid connection settings: %w", err)
	}

	password := p.Password
	if password == "" {
		if password, err = readPgpass(p); err != nil {
			return nil, err
		}
		if password != "" {
			log.Info("Using password from pgpass file", zap.String("path", p.PgpassFile))
		}
	}
	if password != "" {
		cc.Password = password
	}
	return cc, nil
}

func (p Params) fields(jobs int) []zap.Field {
	return []zap.Field{
		zap.String("host", p.Host),
		zap.Int("port", p.Port),
		zap.String("database", p.Database),
		zap.String("user", p.User),
		zap.Bool("password_provided", p.Password != ""),
		zap.Int("jobs", jobs),
	}
}

// Snapshot describes a finished dump.
type Snapshot struct {
	Dir       string
	TxID      int64
	Timestamp time.Time
}

// Dump writes the export tables of the database into dir in directory
// format, then records the transaction position read just before the dump
// as the dump's replication state.
func Dump(ctx context.Context, p Params, jobs int, dir string, log *zap.Logger) (*Snapshot, error) {
	log = logger.Or(log)
	start := time.Now()
	log.Info("Dumping database", append(p.fields(jobs), zap.String("dir", dir))...)

	if err := writePgpass(p, log); err != nil {
		return nil, err
	}
	txid, ts, err := position(ctx, p, log)
	if err != nil {
		return nil, err
	}

	if err := run(ctx, "pg_dump", dumpArgs(p, jobs, dir), p, log); err != nil {
		return nil, err
	}

	state := &replication.State{SequenceNumber: txid, Timestamp: ts}
	if err := replication.WriteStateFile(filepath.Join(dir, replication.StateFile), state); err != nil {
		return nil, err
	}

	fields := []zap.Field{zap.Duration("duration", time.Since(start).Round(time.Second))}
	if size, err := dirSize(dir); err == nil {
		fields = append(fields, zap.String("size", humanize.Bytes(uint64(size))))
	}
	log.Info("Finished dumping database", fields...)
	return &Snapshot{Dir: dir, TxID: txid, Timestamp: ts}, nil
}

// Restore loads a directory dump into the database.
func Restore(ctx context.Context, p Params, jobs int, dir string, log *zap.Logger) error {
	log = logger.Or(log)
	start := time.Now()
	log.Info("Restoring database", append(p.fields(jobs), zap.String("dir", dir))...)

	if err := writePgpass(p, log); err != nil {
		return err
	}
	if err := run(ctx, "pg_restore", restoreArgs(p, jobs, dir), p, log); err != nil {
		return err
	}

	counts, err := CountObjects(ctx, p, log)
	if err != nil {
		log.Warn("Could not count restored objects", zap.Error(err))
	} else {
		log.Info("Finished restoring database",
			zap.Int64("nodes", counts.Nodes),
			zap.Int64("ways", counts.Ways),
			zap.Int64("relations", counts.Relations),
			zap.Duration("duration", time.Since(start).Round(time.Second)))
	}
	return nil
}

func dumpArgs(p Params, jobs int, dir string) []string {
	args := []string{
		"-h", p.Host,
		"-p", strconv.Itoa(p.Port),
		"-U", p.User,
		"-j", strconv.Itoa(jobs),
		"-d", p.Database,
		"--no-password",
		"--file", dir,
		"--format", "d",
		"--compress", "0",
	}
	for _, t := range DumpTables {
		args = append(args, "--table", string(t))
	}
	return args
}

func restoreArgs(p Params, jobs int, dir string) []string {
	return []string{
		"-h", p.Host,
		"-p", strconv.Itoa(p.Port),
		"-U", p.User,
		"-j", strconv.Itoa(jobs),
		"-d", p.Database,
		"--no-password",
		dir,
	}
}

// run executes a client tool with PGPASSFILE set and its output redirected
// to <name>.log and <name>.error.log in the log directory.
func run(ctx context.Context, name string, args []string, p Params, log *zap.Logger) error {
	logDir := p.LogDir
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	stdoutPath := filepath.Join(logDir, name+".log")
	stderrPath := filepath.Join(logDir, name+".error.log")
	stdout, err := os.Create(stdoutPath)
	if err != nil {
		return err
	}
	defer stdout.Close()
	stderr, err := os.Create(stderrPath)
	if err != nil {
		return err
	}
	defer stderr.Close()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.Env = append(os.Environ(), "PGPASSFILE="+p.PgpassFile)
	log.Debug("Running", zap.String("cmd", name), zap.Strings("args", args))

	if err := cmd.Run(); err != nil {
		fields := []zap.Field{
			zap.String("stdout", stdoutPath),
			zap.String("stderr", stderrPath),
			zap.Error(err),
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			fields = append(fields, zap.Int("exit_code", exitErr.ExitCode()))
		}
		log.Error(name+" failed", fields...)
		return fmt.Errorf("%s failed: %w", name, err)
	}
	return nil
}

func dirSize(dir string) (int64, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			return 0, err
		}
		if info.Mode().IsRegular() {
			total += info.Size()
		}
	}
	return total, nil
}

// ObjectCounts are the live row estimates of the element history tables.
type ObjectCounts struct {
	Nodes, Ways, Relations int64
}

// CountObjects reads the live tuple estimates of the statistics collector.
func CountObjects(ctx context.Context, p Params, log *zap.Logger) (ObjectCounts, error) {
	var counts ObjectCounts
	conn, err := connect(ctx, p, log)
	if err != nil {
		return counts, err
	}
	defer conn.Close(ctx)

	rows, err := conn.Query(ctx, `SELECT relname, n_live_tup FROM pg_stat_user_tables
		WHERE schemaname = 'public' AND relname IN ('nodes', 'ways', 'relations')`)
	if err != nil {
		return counts, fmt.Errorf("failed to count objects: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			return counts, err
		}
		switch name {
		case "nodes":
			counts.Nodes = n
		case "ways":
			counts.Ways = n
		case "relations":
			counts.Relations = n
		}
	}
	return counts, rows.Err()
}

// position returns the oldest transaction still running and the server
// time. Everything committed before that transaction is in a dump started
// afterwards.
func position(ctx context.Context, p Params, log *zap.Logger) (int64, time.Time, error) {
	conn, err := connect(ctx, p, log)
	if err != nil {
		return 0, time.Time{}, err
	}
	defer conn.Close(ctx)

	var txid int64
	var ts time.Time
	err = conn.QueryRow(ctx,
		`SELECT txid_snapshot_xmin(txid_current_snapshot()), now()`).Scan(&txid, &ts)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to read transaction position: %w", err)
	}
	return txid, ts.UTC(), nil
}

func connect(ctx context.Context, p Params, log *zap.Logger) (*pgx.Conn, error) {
	cc, err := p.connConfig(log)
	if err != nil {
		return nil, err
	}
	conn, err := pgx.ConnectConfig(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return conn, nil
}
