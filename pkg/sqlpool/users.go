package sqlpool

import (
	"context"
	"database/sql"
	"errors"

	"github.com/MgJun-ux/MyWebServer/pkg/logger"
)

// Queries against the user table. Placeholders keep credential input
// out of the SQL text.
const (
	selectPasswordSQL = "SELECT password FROM user WHERE username = ? LIMIT 1"
	insertUserSQL     = "INSERT INTO user(username, password) VALUES(?, ?)"
)

// VerifyUser authenticates or registers a user against the pool's
// database. For a login the stored password must match; for a
// registration the username must be free, in which case the row is
// inserted. SQL failures fail the request.
func (p *Pool) VerifyUser(ctx context.Context, name, password string, isLogin bool) (bool, error) {
	if name == "" || password == "" {
		return false, nil
	}
	ok := false
	err := p.With(ctx, func(conn *sql.Conn) error {
		var stored string
		err := conn.QueryRowContext(ctx, selectPasswordSQL, name).Scan(&stored)
		switch {
		case err == nil:
			if isLogin {
				ok = stored == password
				if !ok {
					logger.Debugf("user %s: password mismatch", name)
				}
			} else {
				logger.Debugf("user %s already exists", name)
			}
			return nil
		case errors.Is(err, sql.ErrNoRows):
			if isLogin {
				return nil
			}
			if _, err := conn.ExecContext(ctx, insertUserSQL, name, password); err != nil {
				return err
			}
			ok = true
			return nil
		default:
			return err
		}
	})
	if err != nil {
		logger.Errorf("user verify %s: %v", name, err)
		return false, err
	}
	return ok, nil
}
