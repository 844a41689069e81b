package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/go-auth-nosql/internal/application/audit"
	"github.com/go-auth-nosql/internal/application/claim"
	"github.com/go-auth-nosql/internal/application/password"
	"github.com/go-auth-nosql/internal/application/ratelimit"
	"github.com/go-auth-nosql/internal/application/token"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/infrastructure/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const strongPassword = "Abcd1234"

type harness struct {
	db      *memory.DB
	svc     Service
	limiter *ratelimit.Limiter
	now     time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := memory.New()
	h := &harness{db: db, now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return h.now }

	h.limiter = ratelimit.NewLimiter(db.RateLimits(), db.Blocks(), ratelimit.DefaultPolicy()).WithClock(clock)
	issuer := token.NewIssuer(token.IssuerDeps{
		VerificationRepo: db.VerificationTokens(),
		ResetRepo:        db.ResetTokens(),
		UserRepo:         db.Users(),
		Config:           token.DefaultConfig(),
	}).WithClock(clock)

	svc := NewService(ServiceDeps{
		UserRepo:   db.Users(),
		Transactor: db,
		Limiter:    h.limiter,
		Audit:      audit.NewLogger(db.AuditLogs(), db.AuditLogs()),
		Tokens:     issuer,
		Claims:     claim.NewResolver(db.Resources()),
		Hasher:     password.NewHasher(bcrypt.MinCost),
	})
	svc.(*service).now = clock
	h.svc = svc
	return h
}

func meta(ip string) domain.RequestMeta {
	return domain.RequestMeta{IP: ip, UserAgent: "test-agent"}
}

func (h *harness) signup(t *testing.T, email string) *SignupResult {
	t.Helper()
	res, err := h.svc.Signup(context.Background(), SignupRequest{Email: email, Password: strongPassword, Name: "Ada"}, meta("10.0.0.1"))
	require.NoError(t, err)
	return res
}

func (h *harness) verificationTokens(t *testing.T, email string) []domain.VerificationToken {
	t.Helper()
	toks, err := h.db.VerificationTokens().ListByIdentifier(context.Background(), email)
	require.NoError(t, err)
	return toks
}

func (h *harness) resetTokens(t *testing.T, email string) []domain.PasswordResetToken {
	t.Helper()
	toks, err := h.db.ResetTokens().ListByEmail(context.Background(), email)
	require.NoError(t, err)
	return toks
}

func (h *harness) events(ev domain.AuditEvent) []domain.AuditLog {
	var out []domain.AuditLog
	for _, l := range h.db.AuditLogs().All() {
		if l.Event == ev {
			out = append(out, l)
		}
	}
	return out
}

func (h *harness) user(t *testing.T, email string) *domain.User {
	t.Helper()
	u, err := h.db.Users().GetByEmail(context.Background(), email)
	require.NoError(t, err)
	return u
}

func (h *harness) outboxKinds() []domain.OutboxKind {
	var kinds []domain.OutboxKind
	for _, m := range h.db.Outbox().List() {
		kinds = append(kinds, m.Kind)
	}
	return kinds
}

// --- Signup ---

func TestSignup_CreatesUnverifiedUserWithOneToken(t *testing.T) {
	h := newHarness(t)

	res, err := h.svc.Signup(context.Background(), SignupRequest{Email: "  A@X.com ", Password: strongPassword}, meta("10.0.0.1"))

	require.NoError(t, err)
	assert.True(t, res.RequiresVerification)
	u := h.user(t, "a@x.com")
	assert.Nil(t, u.EmailVerified)
	assert.Equal(t, domain.SignupPassword, u.SignupMethod)
	assert.True(t, u.HasPassword())
	assert.Len(t, h.verificationTokens(t, "a@x.com"), 1)
	assert.Len(t, h.events(domain.EventAccountCreated), 1)
	assert.ElementsMatch(t, []domain.OutboxKind{domain.OutboxVerificationEmail, domain.OutboxBillingCustomer}, h.outboxKinds())
}

func TestSignup_DuplicateIsGeneric(t *testing.T) {
	h := newHarness(t)
	h.signup(t, "a@x.com")

	_, errUnverified := h.svc.Signup(context.Background(), SignupRequest{Email: "a@x.com", Password: strongPassword}, meta("10.0.0.2"))

	now := h.now
	require.NoError(t, h.db.Users().Patch(context.Background(), h.user(t, "a@x.com").UserID, domain.UserPatch{EmailVerified: &now}))
	_, errVerified := h.svc.Signup(context.Background(), SignupRequest{Email: "A@x.com", Password: strongPassword}, meta("10.0.0.2"))

	assert.ErrorIs(t, errUnverified, ErrSignupUnavailable)
	assert.Equal(t, errUnverified.Error(), errVerified.Error())
	assert.Len(t, h.events(domain.EventSignupDuplicate), 2)
	assert.Len(t, h.verificationTokens(t, "a@x.com"), 1)
}

func TestSignup_WeakPasswordReturnsFirstViolation(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Signup(context.Background(), SignupRequest{Email: "a@x.com", Password: "short"}, meta("10.0.0.1"))

	var pe *domain.PolicyError
	require.ErrorAs(t, err, &pe)
	assert.ErrorIs(t, err, domain.ErrBadRequest)
	assert.NotEmpty(t, pe.Violations)
	_, lookupErr := h.db.Users().GetByEmail(context.Background(), "a@x.com")
	assert.ErrorIs(t, lookupErr, domain.ErrNotFound)
}

func TestSignup_InvalidEmail(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Signup(context.Background(), SignupRequest{Email: "not-an-email", Password: strongPassword}, meta("10.0.0.1"))
	assert.ErrorIs(t, err, ErrInvalidEmail)
}

func TestSignup_RateLimitedAfterThree(t *testing.T) {
	h := newHarness(t)
	for _, e := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		h.signup(t, e)
	}

	_, err := h.svc.Signup(context.Background(), SignupRequest{Email: "d@x.com", Password: strongPassword}, meta("10.0.0.1"))

	var rl *domain.RateLimitError
	require.ErrorAs(t, err, &rl)
	assert.Greater(t, rl.RetryAfter, time.Duration(0))
	assert.Len(t, h.events(domain.EventSignupRateLimited), 1)
}

func TestSignup_BlockedIPTouchesNoBudget(t *testing.T) {
	h := newHarness(t)
	_, err := h.limiter.Block(context.Background(), "10.0.0.1", "abuse", 0)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err = h.svc.Signup(context.Background(), SignupRequest{Email: "a@x.com", Password: strongPassword}, meta("10.0.0.1"))
		assert.ErrorIs(t, err, domain.ErrBlocked)
	}
	assert.Len(t, h.events(domain.EventSignupBlocked), 5)
	assert.Empty(t, h.events(domain.EventSignupRateLimited))

	require.NoError(t, h.limiter.Unblock(context.Background(), "10.0.0.1"))
	for _, e := range []string{"a@x.com", "b@x.com", "c@x.com"} {
		h.signup(t, e)
	}
}

func TestSignup_ClaimsOnlyUnownedAnonymousResources(t *testing.T) {
	h := newHarness(t)
	for _, r := range []domain.AnonymousResource{
		{ResourceID: "r1", AnonID: "X"},
		{ResourceID: "r2", AnonID: "X"},
		{ResourceID: "r3", AnonID: "X", OwnerID: "other-user"},
	} {
		r := r
		require.NoError(t, h.db.Resources().Put(context.Background(), &r))
	}

	res, err := h.svc.Signup(context.Background(), SignupRequest{Email: "a@x.com", Password: strongPassword, AnonID: "X"}, meta("10.0.0.1"))

	require.NoError(t, err)
	assert.Equal(t, 2, res.ClaimedResources)
	for id, owner := range map[string]string{"r1": res.User.UserID, "r2": res.User.UserID, "r3": "other-user"} {
		r, err := h.db.Resources().Get(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, owner, r.OwnerID)
	}
}

func TestSignup_ReportsTruncatedClaims(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < claim.MaxPerSignup+1; i++ {
		r := domain.AnonymousResource{ResourceID: fmt.Sprintf("r%03d", i), AnonID: "X"}
		require.NoError(t, h.db.Resources().Put(context.Background(), &r))
	}

	res, err := h.svc.Signup(context.Background(), SignupRequest{Email: "a@x.com", Password: strongPassword, AnonID: "X"}, meta("10.0.0.1"))

	require.NoError(t, err)
	assert.Equal(t, claim.MaxPerSignup, res.ClaimedResources)
	assert.True(t, res.ClaimsTruncated)
	created := h.events(domain.EventAccountCreated)
	require.Len(t, created, 1)
	assert.Equal(t, "true", created[0].Metadata["claims_truncated"])
}

func TestSignup_ConcurrentSameEmailCreatesOneUser(t *testing.T) {
	h := newHarness(t)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.svc.Signup(context.Background(), SignupRequest{Email: "race@x.com", Password: strongPassword}, meta("10.0.0.9"))
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, ErrSignupUnavailable)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Len(t, h.events(domain.EventAccountCreated), 1)
}

// --- Login ---

func TestLoginWithPassword_FailureAndSuccessCounters(t *testing.T) {
	h := newHarness(t)
	h.signup(t, "a@x.com")

	_, err := h.svc.LoginWithPassword(context.Background(), "a@x.com", "Wrong1234", meta("10.0.0.1"))
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	u := h.user(t, "a@x.com")
	assert.Equal(t, 1, u.FailedLoginAttempts)
	assert.Nil(t, u.LastLoginAt)

	got, err := h.svc.LoginWithPassword(context.Background(), "A@X.COM", strongPassword, meta("10.0.0.1"))
	require.NoError(t, err)
	assert.Equal(t, 0, got.FailedLoginAttempts)
	u = h.user(t, "a@x.com")
	assert.Equal(t, 0, u.FailedLoginAttempts)
	assert.Equal(t, 1, u.LoginCount)
	require.NotNil(t, u.LastLoginAt)
}

func TestLoginWithPassword_UnknownEmailLooksLikeWrongPassword(t *testing.T) {
	h := newHarness(t)
	h.signup(t, "a@x.com")

	_, errUnknown := h.svc.LoginWithPassword(context.Background(), "nobody@x.com", strongPassword, meta("10.0.0.1"))
	_, errWrong := h.svc.LoginWithPassword(context.Background(), "a@x.com", "Wrong1234", meta("10.0.0.1"))

	assert.ErrorIs(t, errUnknown, ErrInvalidCredentials)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
	assert.Len(t, h.events(domain.EventLoginFailed), 2)
}

func TestLogin_BlockedIP(t *testing.T) {
	h := newHarness(t)
	_, err := h.limiter.Block(context.Background(), "10.0.0.66", "abuse", time.Hour)
	require.NoError(t, err)

	_, err = h.svc.LoginWithPassword(context.Background(), "a@x.com", strongPassword, meta("10.0.0.66"))
	assert.ErrorIs(t, err, domain.ErrBlocked)
	assert.Len(t, h.events(domain.EventLoginBlocked), 1)
}

func TestLoginEmailOnly_GetOrCreate(t *testing.T) {
	h := newHarness(t)

	first, err := h.svc.LoginEmailOnly(context.Background(), "new@x.com", meta("10.0.0.1"))
	require.NoError(t, err)
	assert.Equal(t, domain.SignupEmailOnly, first.SignupMethod)
	assert.False(t, first.HasPassword())
	assert.Nil(t, first.EmailVerified)

	second, err := h.svc.LoginEmailOnly(context.Background(), "new@x.com", meta("10.0.0.1"))
	require.NoError(t, err)
	assert.Equal(t, first.UserID, second.UserID)
	assert.Equal(t, 2, h.user(t, "new@x.com").LoginCount)
	assert.Len(t, h.events(domain.EventAccountCreated), 1)
}

func TestLoginEmailOnly_RefusedForPasswordAccount(t *testing.T) {
	h := newHarness(t)
	h.signup(t, "a@x.com")

	_, err := h.svc.LoginEmailOnly(context.Background(), "a@x.com", meta("10.0.0.1"))
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

// --- Email verification ---

func TestScenario_SignupResendVerify(t *testing.T) {
	h := newHarness(t)
	h.signup(t, "a@x.com")
	old := h.verificationTokens(t, "a@x.com")[0].Token

	h.now = h.now.Add(2 * time.Minute)
	require.NoError(t, h.svc.ResendVerification(context.Background(), "a@x.com", meta("10.0.0.1")))
	assert.Len(t, h.verificationTokens(t, "a@x.com"), 1)
	assert.Len(t, h.events(domain.EventResendThrottled), 1)

	res, err := h.svc.VerifyEmail(context.Background(), "a@x.com", old, meta("10.0.0.1"))
	require.NoError(t, err)
	assert.False(t, res.AlreadyVerified)
	assert.NotNil(t, h.user(t, "a@x.com").EmailVerified)
	assert.Empty(t, h.verificationTokens(t, "a@x.com"))
	assert.Contains(t, h.outboxKinds(), domain.OutboxWelcomeEmail)
}

func TestVerifyEmail_SecondConsumptionFails(t *testing.T) {
	h := newHarness(t)
	h.signup(t, "a@x.com")
	tok := h.verificationTokens(t, "a@x.com")[0].Token

	_, err := h.svc.VerifyEmail(context.Background(), "a@x.com", tok, meta("10.0.0.1"))
	require.NoError(t, err)

	_, err = h.svc.VerifyEmail(context.Background(), "a@x.com", tok, meta("10.0.0.1"))
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)
	failed := h.events(domain.EventEmailVerificationFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, token.ReasonNotFound, failed[0].Metadata["reason"])
}

func TestVerifyEmail_PurgesSiblings(t *testing.T) {
	h := newHarness(t)
	h.signup(t, "a@x.com")
	h.now = h.now.Add(6 * time.Minute)
	require.NoError(t, h.svc.ResendVerification(context.Background(), "a@x.com", meta("10.0.0.1")))
	toks := h.verificationTokens(t, "a@x.com")
	require.Len(t, toks, 2)

	_, err := h.svc.VerifyEmail(context.Background(), "a@x.com", toks[1].Token, meta("10.0.0.1"))
	require.NoError(t, err)
	assert.Empty(t, h.verificationTokens(t, "a@x.com"))
}

func TestVerifyEmail_AlreadyVerifiedIsIdempotent(t *testing.T) {
	h := newHarness(t)
	res := h.signup(t, "a@x.com")
	now := h.now
	require.NoError(t, h.db.Users().Patch(context.Background(), res.User.UserID, domain.UserPatch{EmailVerified: &now}))
	tok := h.verificationTokens(t, "a@x.com")[0].Token

	got, err := h.svc.VerifyEmail(context.Background(), "a@x.com", tok, meta("10.0.0.1"))

	require.NoError(t, err)
	assert.True(t, got.AlreadyVerified)
}

func TestVerifyEmail_ExpiredToken(t *testing.T) {
	h := newHarness(t)
	h.signup(t, "a@x.com")
	tok := h.verificationTokens(t, "a@x.com")[0].Token

	h.now = h.now.Add(25 * time.Hour)
	_, err := h.svc.VerifyEmail(context.Background(), "a@x.com", tok, meta("10.0.0.1"))

	assert.ErrorIs(t, err, domain.ErrTokenInvalid)
	assert.Nil(t, h.user(t, "a@x.com").EmailVerified)
}

func TestVerifyEmail_WrongEmailForToken(t *testing.T) {
	h := newHarness(t)
	h.signup(t, "a@x.com")
	h.signup(t, "b@x.com")
	tok := h.verificationTokens(t, "a@x.com")[0].Token

	_, err := h.svc.VerifyEmail(context.Background(), "b@x.com", tok, meta("10.0.0.1"))
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)
}

func TestVerifyEmail_ConcurrentExactlyOneWins(t *testing.T) {
	h := newHarness(t)
	h.signup(t, "a@x.com")
	tok := h.verificationTokens(t, "a@x.com")[0].Token

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		fresh   int
		invalid int
		already int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := h.svc.VerifyEmail(context.Background(), "a@x.com", tok, meta("10.0.0.1"))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil && res.AlreadyVerified:
				already++
			case err == nil:
				fresh++
			case errors.Is(err, domain.ErrTokenInvalid):
				invalid++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, fresh)
	assert.Equal(t, 7, invalid+already)
	assert.Len(t, h.events(domain.EventEmailVerified), 1)
}

func TestResendVerification_AlwaysGeneric(t *testing.T) {
	h := newHarness(t)
	res := h.signup(t, "verified@x.com")
	now := h.now
	require.NoError(t, h.db.Users().Patch(context.Background(), res.User.UserID, domain.UserPatch{EmailVerified: &now}))

	assert.NoError(t, h.svc.ResendVerification(context.Background(), "ghost@x.com", meta("10.0.0.2")))
	assert.NoError(t, h.svc.ResendVerification(context.Background(), "verified@x.com", meta("10.0.0.2")))

	assert.Empty(t, h.verificationTokens(t, "ghost@x.com"))
	assert.Len(t, h.verificationTokens(t, "verified@x.com"), 1)
	assert.Len(t, h.events(domain.EventResendSkipped), 2)
}

func TestResendVerification_RateLimited(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		require.NoError(t, h.svc.ResendVerification(context.Background(), "ghost@x.com", meta("10.0.0.3")))
	}
	err := h.svc.ResendVerification(context.Background(), "ghost@x.com", meta("10.0.0.3"))
	assert.ErrorIs(t, err, domain.ErrTooManyRequests)
}

func TestResendVerification_MalformedEmailSpendsBudget(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		err := h.svc.ResendVerification(context.Background(), "not-an-email", meta("10.0.0.4"))
		require.ErrorIs(t, err, ErrInvalidEmail)
	}
	err := h.svc.ResendVerification(context.Background(), "ghost@x.com", meta("10.0.0.4"))
	assert.ErrorIs(t, err, domain.ErrTooManyRequests)
}

// --- Password reset ---

func TestRequestPasswordReset_NonexistentIsSilent(t *testing.T) {
	h := newHarness(t)

	err := h.svc.RequestPasswordReset(context.Background(), "ghost@x.com", meta("10.0.0.1"))

	require.NoError(t, err)
	assert.Empty(t, h.resetTokens(t, "ghost@x.com"))
	assert.Len(t, h.events(domain.EventResetNonexistent), 1)
	assert.Empty(t, h.db.Outbox().List())
}

func TestRequestPasswordReset_ThrottledWithinFiveMinutes(t *testing.T) {
	h := newHarness(t)
	h.signup(t, "a@x.com")

	require.NoError(t, h.svc.RequestPasswordReset(context.Background(), "a@x.com", meta("10.0.0.1")))
	h.now = h.now.Add(3 * time.Minute)
	require.NoError(t, h.svc.RequestPasswordReset(context.Background(), "a@x.com", meta("10.0.0.1")))

	assert.Len(t, h.resetTokens(t, "a@x.com"), 1)
	assert.Len(t, h.events(domain.EventResetRequested), 1)
	assert.Len(t, h.events(domain.EventResetThrottled), 1)
}

func TestRequestPasswordReset_MalformedEmailSpendsBudget(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		err := h.svc.RequestPasswordReset(context.Background(), "@@", meta("10.0.0.5"))
		require.ErrorIs(t, err, ErrInvalidEmail)
	}
	err := h.svc.RequestPasswordReset(context.Background(), "ghost@x.com", meta("10.0.0.5"))
	assert.ErrorIs(t, err, domain.ErrTooManyRequests)
}

func TestRequestPasswordReset_ConcurrentRequestsIssueOneToken(t *testing.T) {
	h := newHarness(t)
	h.signup(t, "a@x.com")

	const n = 6
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = h.svc.RequestPasswordReset(context.Background(), "a@x.com", meta(fmt.Sprintf("10.0.1.%d", i)))
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, h.resetTokens(t, "a@x.com"), 1)
	assert.Len(t, h.events(domain.EventResetRequested), 1)
	assert.Len(t, h.events(domain.EventResetThrottled), n-1)
}

func TestCompletePasswordReset_SingleUse(t *testing.T) {
	h := newHarness(t)
	h.signup(t, "a@x.com")
	require.NoError(t, h.svc.RequestPasswordReset(context.Background(), "a@x.com", meta("10.0.0.1")))
	tok := h.resetTokens(t, "a@x.com")[0].Token

	require.NoError(t, h.svc.CompletePasswordReset(context.Background(), "a@x.com", tok, "Newpass123", meta("10.0.0.1")))
	_, err := h.svc.LoginWithPassword(context.Background(), "a@x.com", "Newpass123", meta("10.0.0.1"))
	require.NoError(t, err)

	err = h.svc.CompletePasswordReset(context.Background(), "a@x.com", tok, "Other1234", meta("10.0.0.1"))
	assert.ErrorIs(t, err, domain.ErrTokenInvalid)
	failed := h.events(domain.EventResetFailed)
	require.Len(t, failed, 1)
	assert.Equal(t, token.ReasonUsed, failed[0].Metadata["reason"])
}

func TestCompletePasswordReset_Expired(t *testing.T) {
	h := newHarness(t)
	h.signup(t, "a@x.com")
	require.NoError(t, h.svc.RequestPasswordReset(context.Background(), "a@x.com", meta("10.0.0.1")))
	tok := h.resetTokens(t, "a@x.com")[0].Token

	h.now = h.now.Add(25 * time.Hour)
	err := h.svc.CompletePasswordReset(context.Background(), "a@x.com", tok, "Newpass123", meta("10.0.0.1"))

	assert.ErrorIs(t, err, domain.ErrTokenInvalid)
	_, err = h.svc.LoginWithPassword(context.Background(), "a@x.com", strongPassword, meta("10.0.0.1"))
	assert.NoError(t, err)
}

func TestCompletePasswordReset_PolicyViolation(t *testing.T) {
	h := newHarness(t)
	err := h.svc.CompletePasswordReset(context.Background(), "a@x.com", "tok", "weak", meta("10.0.0.1"))
	assert.ErrorIs(t, err, domain.ErrBadRequest)
}

// --- Password change / upgrade ---

func TestChangePassword(t *testing.T) {
	h := newHarness(t)
	res := h.signup(t, "a@x.com")

	err := h.svc.ChangePassword(context.Background(), res.User.UserID, "Wrong1234", "Next12345", meta("10.0.0.1"))
	assert.ErrorIs(t, err, ErrWrongPassword)

	err = h.svc.ChangePassword(context.Background(), res.User.UserID, strongPassword, "weak", meta("10.0.0.1"))
	assert.ErrorIs(t, err, domain.ErrBadRequest)

	require.NoError(t, h.svc.ChangePassword(context.Background(), res.User.UserID, strongPassword, "Next12345", meta("10.0.0.1")))
	assert.Len(t, h.events(domain.EventPasswordChangeFailed), 2)
	assert.Len(t, h.events(domain.EventPasswordChanged), 1)
	_, err = h.svc.LoginWithPassword(context.Background(), "a@x.com", "Next12345", meta("10.0.0.1"))
	assert.NoError(t, err)
}

func TestUpgradeAccount(t *testing.T) {
	h := newHarness(t)
	u, err := h.svc.LoginEmailOnly(context.Background(), "e@x.com", meta("10.0.0.1"))
	require.NoError(t, err)

	upgraded, err := h.svc.UpgradeAccount(context.Background(), u.UserID, strongPassword, meta("10.0.0.1"))
	require.NoError(t, err)
	assert.True(t, upgraded.HasPassword())
	assert.NotNil(t, upgraded.EmailVerified)
	assert.Equal(t, domain.StateVerifiedWithPassword, h.user(t, "e@x.com").State())

	ev := h.events(domain.EventAccountUpgraded)
	require.Len(t, ev, 1)
	assert.Equal(t, "email_only", ev[0].Metadata["from"])
	assert.Equal(t, "password_protected", ev[0].Metadata["to"])

	_, err = h.svc.UpgradeAccount(context.Background(), u.UserID, "Other1234", meta("10.0.0.1"))
	assert.ErrorIs(t, err, ErrHasPassword)
}

func TestUpgradeAccount_UnknownUser(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.UpgradeAccount(context.Background(), "missing", strongPassword, meta("10.0.0.1"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
