package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/scorebook/internal/services"
	"github.com/desertthunder/scorebook/internal/shared"
)

// AuthLogin exchanges email and password for a token via POST /users/login and saves it.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	email := cmd.String("email")
	password := cmd.String("password")
	if password == "" {
		return fmt.Errorf("%w: --password or SCOREBOOK_PASSWORD is required", shared.ErrMissingArgument)
	}

	r.logger.Info("signing in", "email", email)

	token, err := r.authService().Login(ctx, email, password)
	if err != nil {
		return err
	}
	if err := r.saveToken(token, email); err != nil {
		return err
	}

	return r.writePlain("✓ Signed in as %s\n", r.describeToken(token))
}

// AuthLogout removes the saved token and forgets cached statuses.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	if err := services.RemoveToken(r.config.Auth.TokenFile); err != nil {
		return err
	}
	if r.statusStore != nil {
		r.statusStore.Purge()
	}
	r.logger.Info("token removed", "path", r.config.Auth.TokenFile)
	return r.writePlain("✓ Signed out\n")
}

// AuthStatus reports which user the resolved token belongs to and when it expires.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	token := r.token()
	if token == "" {
		return r.writePlain("✗ Not signed in (likes and favourites will read as off)\n")
	}

	claims, err := services.ParseTokenClaims(token)
	if err != nil {
		return err
	}
	if claims.Expired(r.now()) {
		r.writePlain("✗ Token for %s expired at %s\n", claims.UserID, claims.ExpiresAt.Local().Format("2006-01-02 15:04"))
		return fmt.Errorf("%w: sign in again", shared.ErrTokenExpired)
	}

	r.writePlain("✓ Signed in as %s\n", claims.UserID)
	if !claims.ExpiresAt.IsZero() {
		r.writePlain("Expires: %s\n", claims.ExpiresAt.Local().Format("2006-01-02 15:04"))
	}
	if r.config.Auth.Token != "" {
		r.writePlain("Source: config or SCOREBOOK_TOKEN\n")
	} else {
		r.writePlain("Source: %s\n", r.config.Auth.TokenFile)
	}
	return nil
}

// AuthImportCurl saves the bearer token of a request copied from the browser.
func (r *Runner) AuthImportCurl(ctx context.Context, cmd *cli.Command) error {
	curlCmd := cmd.String("curl")
	curlFile := cmd.String("curl-file")

	if curlCmd == "" && curlFile == "" {
		return fmt.Errorf("%w: either --curl or --curl-file must be provided", shared.ErrMissingArgument)
	}
	if curlCmd != "" && curlFile != "" {
		return fmt.Errorf("%w: cannot specify both --curl and --curl-file", shared.ErrInvalidArgument)
	}

	var req *shared.CurlRequest
	var err error
	if curlFile != "" {
		req, err = shared.ParseCurlFile(curlFile)
	} else {
		req, err = shared.ParseCurlCommand(curlCmd)
	}
	if err != nil {
		return fmt.Errorf("failed to parse cURL command: %w", err)
	}

	token, err := req.BearerToken()
	if err != nil {
		return err
	}
	if _, err := services.ParseTokenClaims(token); err != nil {
		return err
	}
	if err := r.saveToken(token, ""); err != nil {
		return err
	}

	r.writePlain("✓ Token imported for %s\n", r.describeToken(token))
	if base := req.APIBase(); base != "" && base != r.config.API.BaseURL {
		r.writePlainln("The request went to %s; set api.base_url in %s to use that API.", base, r.configPath)
	}
	return nil
}

func (r *Runner) saveToken(token, email string) error {
	if r.config.Auth.TokenFile == "" {
		return fmt.Errorf("%w: auth.token_file is not set", shared.ErrInvalidConfig)
	}
	if err := services.SaveToken(r.config.Auth.TokenFile, services.StoredToken{Token: token, Email: email}); err != nil {
		return err
	}
	r.logger.Info("token saved", "path", r.config.Auth.TokenFile)
	if r.config.Auth.Token != "" {
		r.logger.Warn("auth.token in the config overrides the saved token")
	}
	return nil
}

func (r *Runner) describeToken(token string) string {
	claims, err := services.ParseTokenClaims(token)
	if err != nil || claims.UserID == "" {
		return "unknown user"
	}
	if claims.Expired(r.now()) {
		return claims.UserID + " (expired)"
	}
	return claims.UserID
}
