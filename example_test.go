package formauth_test

import (
	"context"
	"errors"
	"fmt"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/MrEthical07/formauth"
	"github.com/MrEthical07/formauth/credentials"
)

func exampleEngine() (*formauth.Engine, func()) {
	mr, err := miniredis.Run()
	if err != nil {
		panic(err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := formauth.DefaultConfig()
	cfg.Challenge.Enabled = false
	cfg.Password.Algorithm = formauth.PasswordBcrypt
	cfg.Password.BcryptCost = 4

	hasher, err := formauth.NewPasswordHasher(cfg.Password)
	if err != nil {
		panic(err)
	}
	hash, err := hasher.Hash("123456")
	if err != nil {
		panic(err)
	}

	users := credentials.NewMemory(formauth.User{
		Username:              "bob",
		PasswordHash:          hash,
		Authorities:           []string{"ROLE_USER"},
		Enabled:               true,
		AccountNonExpired:     true,
		AccountNonLocked:      true,
		CredentialsNonExpired: true,
	})

	engine, err := formauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithCredentialStore(users).
		WithPasswordHasher(hasher).
		Build()
	if err != nil {
		panic(err)
	}
	return engine, func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	}
}

// ExampleEngine_Login logs in and reads the identity back from the
// rotated session.
func ExampleEngine_Login() {
	engine, done := exampleEngine()
	defer done()
	ctx := context.Background()

	res, err := engine.Login(ctx, formauth.LoginRequest{Username: "bob", Password: "123456"})
	if err != nil {
		fmt.Println("login failed:", err)
		return
	}

	id, err := engine.SessionIdentity(ctx, res.SessionID)
	if err != nil {
		fmt.Println("session:", err)
		return
	}
	fmt.Println(id.Username, id.Authorities)
	// Output: bob [ROLE_USER]
}

// ExampleEngine_Authenticate shows how failures are reported. Unknown users
// and wrong passwords look the same to the caller.
func ExampleEngine_Authenticate() {
	engine, done := exampleEngine()
	defer done()
	ctx := context.Background()

	for _, username := range []string{"bob", "mallory"} {
		out := engine.Authenticate(ctx, formauth.AuthenticationRequest{
			Username:    username,
			RawPassword: "wrong-password",
		})
		fmt.Println(username, out.Succeeded(), out.Failure.Code())
	}
	// Output:
	// bob false bad_credentials
	// mallory false bad_credentials
}

// ExampleFailure shows how to branch on the failure kind of a login error.
func ExampleFailure() {
	engine, done := exampleEngine()
	defer done()

	_, err := engine.Login(context.Background(), formauth.LoginRequest{Username: "bob", Password: "nope"})

	var f *formauth.Failure
	if errors.As(err, &f) {
		fmt.Println(f.Kind == formauth.BadCredentials)
	}
	// Output: true
}
