package configuration

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/juju/errors"
	_ "github.com/lib/pq"
)

// CheckDataSource verifies that the data store described by a is
// reachable. Filesystem stores must point at an existing directory and
// postgres stores must answer a ping.
func CheckDataSource(ctx context.Context, a Automatic) error {
	switch strings.ToLower(a.Format) {
	case FormatFilesystem, "":
		if a.DataDirectory == "" {
			return errors.NotValidf("filesystem store without data directory")
		}
		ok, err := isDir(a.DataDirectory)
		if err != nil {
			return err
		}
		if !ok {
			return errors.NotFoundf("data directory %s", a.DataDirectory)
		}
		return nil

	case FormatPostgres:
		if a.BDD == nil || a.BDD.ConnectURL == "" {
			return errors.NotValidf("postgres store without connection url")
		}
		dsn, err := postgresDSN(a.BDD)
		if err != nil {
			return err
		}
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return errors.Annotate(err, "opening postgres store")
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			return errors.Annotatef(err, "connecting to %s", redact(a.BDD.ConnectURL))
		}
		return nil
	}
	return errors.NotSupportedf("data store format %q", a.Format)
}

// postgresDSN accepts both postgres:// urls and jdbc:postgresql:// urls.
func postgresDSN(b *BDD) (string, error) {
	raw := strings.TrimPrefix(b.ConnectURL, "jdbc:")
	raw = strings.Replace(raw, "postgresql://", "postgres://", 1)
	if !strings.HasPrefix(raw, "postgres://") {
		// key=value form, handed to lib/pq as is
		dsn := raw
		if b.User != "" {
			dsn += fmt.Sprintf(" user=%s", b.User)
		}
		if b.Password != "" {
			dsn += fmt.Sprintf(" password=%s", b.Password)
		}
		return dsn, nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", errors.NotValidf("connection url %q", redact(b.ConnectURL))
	}
	if b.User != "" {
		if b.Password != "" {
			u.User = url.UserPassword(b.User, b.Password)
		} else {
			u.User = url.User(b.User)
		}
	}
	if u.Query().Get("sslmode") == "" {
		q := u.Query()
		q.Set("sslmode", "disable")
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func redact(connectURL string) string {
	u, err := url.Parse(strings.TrimPrefix(connectURL, "jdbc:"))
	if err != nil || u.User == nil {
		return connectURL
	}
	u.User = url.User(u.User.Username())
	return u.String()
}
