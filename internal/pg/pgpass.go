package pg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"

	"github.com/jackc/pgpassfile"
	"go.uber.org/zap"
)

var pgpassEscaper = strings.NewReplacer(`\`, `\\`, `:`, `\:`)

// pgpassLine formats one entry of a password file.
func pgpassLine(p Params, password string) string {
	fields := []string{p.Host, strconv.Itoa(p.Port), p.Database, p.User, password}
	for i, f := range fields {
		fields[i] = pgpassEscaper.Replace(f)
	}
	return strings.Join(fields, ":") + "\n"
}

// writePgpass stores the supplied password where libpq will find it. Without
// a password an existing file is left alone and only its mode is checked.
func writePgpass(p Params, log *zap.Logger) error {
	if p.Password == "" {
		fi, err := os.Stat(p.PgpassFile)
		if errors.Is(err, fs.ErrNotExist) {
			log.Info("No credentials and no pgpass file provided, relying on trust authentication")
			return nil
		}
		if err != nil {
			return fmt.Errorf("stat %s: %w", p.PgpassFile, err)
		}
		if mode := fi.Mode().Perm(); mode != 0o600 {
			log.Warn("pgpass file has wrong permissions, must be 0600",
				zap.String("path", p.PgpassFile),
				zap.String("mode", fmt.Sprintf("%#o", mode)))
		}
		return nil
	}

	if _, err := os.Stat(p.PgpassFile); err == nil {
		log.Warn("Overwriting pgpass file with provided credentials", zap.String("path", p.PgpassFile))
	}
	if err := os.WriteFile(p.PgpassFile, []byte(pgpassLine(p, p.Password)), 0o600); err != nil {
		return fmt.Errorf("write %s: %w", p.PgpassFile, err)
	}
	// WriteFile keeps the mode of an existing file.
	if err := os.Chmod(p.PgpassFile, 0o600); err != nil {
		return fmt.Errorf("chmod %s: %w", p.PgpassFile, err)
	}
	return nil
}

// readPgpass returns the password of the first entry matching p, or "" when
// there is none.
func readPgpass(p Params) (string, error) {
	fi, err := os.Stat(p.PgpassFile)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if mode := fi.Mode().Perm(); mode != 0o600 {
		return "", fmt.Errorf("pgpass file %s has mode %#o, must be 0600", p.PgpassFile, mode)
	}

	pf, err := pgpassfile.ReadPassfile(p.PgpassFile)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", p.PgpassFile, err)
	}
	return pf.FindPassword(p.Host, strconv.Itoa(p.Port), p.Database, p.User), nil
}
