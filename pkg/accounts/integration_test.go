//go:build integration

// Integration tests against real PostgreSQL and Redis containers. Run with:
//
//	go test -race -tags=integration ./pkg/accounts/...
package accounts_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/StricklySoft/stricklysoft-identity/internal/testutil"
	"github.com/StricklySoft/stricklysoft-identity/internal/testutil/containers"
	"github.com/StricklySoft/stricklysoft-identity/pkg/accounts"
	"github.com/StricklySoft/stricklysoft-identity/pkg/auth"
	"github.com/StricklySoft/stricklysoft-identity/pkg/clients/postgres"
	"github.com/StricklySoft/stricklysoft-identity/pkg/clients/redis"
	sserr "github.com/StricklySoft/stricklysoft-identity/pkg/errors"
	"github.com/StricklySoft/stricklysoft-identity/pkg/models"
)

func setupStore(t *testing.T) (*accounts.PostgresStore, string) {
	t.Helper()
	ctx := context.Background()

	pg, err := containers.StartPostgres(ctx)
	if err != nil {
		t.Fatalf("failed to start postgres: %v", err)
	}
	t.Cleanup(func() {
		if err := pg.Container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate postgres container: %v", err)
		}
	})

	m, err := accounts.NewMigrator(pg.ConnString, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewMigrator() error = %v", err)
	}
	if err := m.Up(); err != nil {
		t.Fatalf("Up() error = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Logf("migrator close: %v", err)
	}

	client, err := postgres.NewClient(ctx, postgres.Config{URI: pg.ConnString, MaxConns: 25, MinConns: 1})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	t.Cleanup(client.Close)
	return accounts.NewPostgresStore(client), pg.ConnString
}

func TestIntegration_MigratorVersionAndDown(t *testing.T) {
	_, conn := setupStore(t)

	m, err := accounts.NewMigrator(conn, testutil.DiscardLogger())
	if err != nil {
		t.Fatalf("NewMigrator() error = %v", err)
	}
	defer func() { _ = m.Close() }()

	if err := m.Up(); err != nil {
		t.Fatalf("second Up() error = %v, want nil for no change", err)
	}
	v, dirty, err := m.Version()
	if err != nil || v != 1 || dirty {
		t.Fatalf("Version() = %d, %v, %v; want 1, false, nil", v, dirty, err)
	}
	if err := m.Down(); err != nil {
		t.Fatalf("Down() error = %v", err)
	}
	if v, _, err := m.Version(); err != nil || v != 0 {
		t.Fatalf("Version() after down = %d, %v; want 0, nil", v, err)
	}
}

func TestIntegration_StoreLifecycle(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	acct, err := store.Insert(ctx, models.NewAccount{SubjectID: "user_a", Email: "Ada@Example.com", Nickname: "ada"})
	if err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if acct.ID == 0 || acct.CreatedAt.IsZero() || acct.IsDeleted {
		t.Fatalf("inserted account = %+v", acct)
	}

	byEmail, err := store.GetByEmail(ctx, "ada@example.com")
	if err != nil || byEmail.ID != acct.ID {
		t.Fatalf("GetByEmail() = %+v, %v", byEmail, err)
	}

	_, err = store.Insert(ctx, models.NewAccount{SubjectID: "user_b", Email: "ADA@example.com", Nickname: "imposter"})
	if !sserr.HasCode(err, sserr.CodeConflictAlreadyExists) {
		t.Fatalf("duplicate email error = %v, want CONF_002", err)
	}

	login := time.Now().UTC().Truncate(time.Microsecond)
	if err := store.TouchLastLogin(ctx, acct.ID, login); err != nil {
		t.Fatalf("TouchLastLogin() error = %v", err)
	}

	img := "https://img.example.com/a.png"
	nick := "countess"
	updated, err := store.UpdateProfile(ctx, acct.ID, models.ProfileUpdate{Nickname: &nick, ProfileImageURL: &img})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if updated.Nickname != nick || updated.ProfileImageURL == nil || *updated.ProfileImageURL != img {
		t.Fatalf("updated = %+v", updated)
	}
	if updated.LastLoginAt == nil || !updated.LastLoginAt.Equal(login) {
		t.Fatalf("LastLoginAt = %v, want %v", updated.LastLoginAt, login)
	}

	empty := ""
	cleared, err := store.UpdateProfile(ctx, acct.ID, models.ProfileUpdate{ProfileImageURL: &empty})
	if err != nil || cleared.ProfileImageURL != nil {
		t.Fatalf("clear image = %+v, %v", cleared, err)
	}

	deleted, err := store.SoftDelete(ctx, "user_a")
	if err != nil || !deleted {
		t.Fatalf("SoftDelete() = %v, %v", deleted, err)
	}
	if _, err := store.GetBySubjectID(ctx, "user_a"); !sserr.HasCode(err, sserr.CodeNotFoundAccount) {
		t.Fatalf("GetBySubjectID() after delete error = %v, want NF_004", err)
	}

	// The email is free again once its owner is deleted; the subject is not.
	if _, err := store.Insert(ctx, models.NewAccount{SubjectID: "user_b", Email: "ada@example.com", Nickname: "b"}); err != nil {
		t.Fatalf("reuse email of deleted account: %v", err)
	}
	_, err = store.Insert(ctx, models.NewAccount{SubjectID: "user_a", Email: "new@example.com", Nickname: "a"})
	if !sserr.HasCode(err, sserr.CodeConflictAlreadyExists) {
		t.Fatalf("re-insert deleted subject error = %v, want CONF_002", err)
	}
}

func TestIntegration_ConcurrentFirstLogins(t *testing.T) {
	store, _ := setupStore(t)
	resolver := accounts.NewResolver(store, accounts.WithLogger(testutil.DiscardLogger()))
	ctx := context.Background()

	const n = 20
	claims := &auth.TokenClaims{SubjectID: "user_race", Issuer: "https://clerk.example.com", Email: "race@example.com"}

	var wg sync.WaitGroup
	ids := make([]int64, n)
	errs := make([]error, n)
	start := make(chan struct{})
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			acct, err := resolver.ResolveFromClaims(ctx, claims)
			errs[i] = err
			if acct != nil {
				ids[i] = acct.ID
			}
		}()
	}
	close(start)
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	for i, id := range ids {
		if id != ids[0] {
			t.Fatalf("call %d returned account %d, call 0 returned %d", i, id, ids[0])
		}
	}

	// Exactly one row, live or not, exists for the subject.
	for i := range 3 {
		_, err := store.Insert(ctx, models.NewAccount{
			SubjectID: "user_race",
			Email:     fmt.Sprintf("racer%d@example.com", i),
			Nickname:  "racer",
		})
		if !sserr.HasCode(err, sserr.CodeConflictAlreadyExists) {
			t.Fatalf("duplicate insert error = %v, want CONF_002", err)
		}
	}
	acct, err := store.GetBySubjectID(ctx, "user_race")
	if err != nil || acct.ID != ids[0] {
		t.Fatalf("GetBySubjectID() = %+v, %v", acct, err)
	}
}

func TestIntegration_ReplayGuard(t *testing.T) {
	ctx := context.Background()
	rd, err := containers.StartRedis(ctx)
	if err != nil {
		t.Fatalf("failed to start redis: %v", err)
	}
	t.Cleanup(func() {
		if err := rd.Container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate redis container: %v", err)
		}
	})

	client, err := redis.NewClient(ctx, redis.Config{URI: rd.ConnString, PoolSize: 5})
	if err != nil {
		t.Fatalf("failed to create redis client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	g := accounts.NewReplayGuard(client, time.Minute)
	first, err := g.Claim(ctx, "msg_int")
	if err != nil || !first {
		t.Fatalf("first Claim() = %v, %v", first, err)
	}
	again, err := g.Claim(ctx, "msg_int")
	if err != nil || again {
		t.Fatalf("second Claim() = %v, %v; want false", again, err)
	}
	if err := g.Release(ctx, "msg_int"); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if ok, err := g.Claim(ctx, "msg_int"); err != nil || !ok {
		t.Fatalf("Claim() after release = %v, %v", ok, err)
	}
}
