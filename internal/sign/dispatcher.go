package sign

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/rommer/internal/archive"
	"git.home.luguber.info/inful/rommer/internal/config"
	ferrors "git.home.luguber.info/inful/rommer/internal/foundation/errors"
	"git.home.luguber.info/inful/rommer/internal/logfields"
	"git.home.luguber.info/inful/rommer/internal/process"
)

// ZipPathPlaceholder is substituted into custom signing commands.
const ZipPathPlaceholder = "{zip_path}"

// Dispatcher runs the selected signing method.
type Dispatcher struct {
	Runner process.Runner
	Codec  archive.Codec
	DryRun bool
	Logger *slog.Logger
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// Sign signs archivePath with m and returns the path of the signed archive.
func (d *Dispatcher) Sign(ctx context.Context, archivePath string, m Method) (string, error) {
	log := d.logger().With(logfields.Method(string(m.Name())))
	if d.DryRun {
		log.Info("Would sign ROM", logfields.Path(archivePath), logfields.DryRun(true))
		switch v := m.(type) {
		case APKSigner:
			return signedPath(archivePath), nil
		case Custom:
			log.Info("Would run custom signing command", slog.String("command", v.command(archivePath)))
		}
		return archivePath, nil
	}

	var (
		out string
		err error
	)
	switch v := m.(type) {
	case APKSigner:
		out, err = d.apksigner(ctx, archivePath, v)
	case JarSigner:
		out, err = d.jarsigner(ctx, archivePath, v)
	case Custom:
		out, err = d.custom(ctx, archivePath, v)
	case Test:
		out, err = d.test(archivePath)
	default:
		return "", ferrors.InternalError(fmt.Sprintf("unhandled signing method %T", m)).Build()
	}
	if err != nil {
		return "", err
	}
	log.Info("ROM signed", logfields.Path(out))
	return out, nil
}

func signedPath(archivePath string) string {
	dir := filepath.Dir(archivePath)
	stem := strings.TrimSuffix(filepath.Base(archivePath), filepath.Ext(archivePath))
	return filepath.Join(dir, stem+"_signed.zip")
}

func (d *Dispatcher) apksigner(ctx context.Context, archivePath string, m APKSigner) (string, error) {
	if err := requireKeystore(m.KeystoreCredentials); err != nil {
		return "", err
	}
	out := signedPath(archivePath)
	cmd := process.Command{
		Name: "apksigner",
		Args: []string{
			"sign",
			"--ks", m.KeystorePath,
			"--ks-key-alias", m.KeyAlias,
			"--ks-pass", "pass:" + m.KeystorePassword,
			"--key-pass", "pass:" + m.KeyPassword,
			"--out", out,
			archivePath,
		},
	}
	if err := d.run(ctx, cmd, m.Name()); err != nil {
		return "", err
	}
	return out, nil
}

func (d *Dispatcher) jarsigner(ctx context.Context, archivePath string, m JarSigner) (string, error) {
	if err := requireKeystore(m.KeystoreCredentials); err != nil {
		return "", err
	}
	cmd := process.Command{
		Name: "jarsigner",
		Args: []string{
			"-verbose",
			"-sigalg", "SHA256withRSA",
			"-digestalg", "SHA-256",
			"-keystore", m.KeystorePath,
			"-storepass", m.KeystorePassword,
			"-keypass", m.KeyPassword,
			archivePath,
			m.KeyAlias,
		},
	}
	if err := d.run(ctx, cmd, m.Name()); err != nil {
		return "", err
	}
	return archivePath, nil
}

func (c Custom) command(archivePath string) string {
	return strings.ReplaceAll(c.Command, ZipPathPlaceholder, archivePath)
}

func (d *Dispatcher) custom(ctx context.Context, archivePath string, m Custom) (string, error) {
	if strings.TrimSpace(m.Command) == "" {
		return "", ferrors.ConfigError("custom signing requires custom_command").
			WithContext("field", "signing.custom_command").
			Build()
	}
	cmd := process.Command{
		Name: "sh",
		Args: []string{"-c", m.command(archivePath)},
		Env:  []string{"ROMMER_ARCHIVE=" + archivePath},
	}
	if err := d.run(ctx, cmd, m.Name()); err != nil {
		return "", err
	}
	return archivePath, nil
}

func requireKeystore(c KeystoreCredentials) error {
	if c.KeystorePath == "" {
		return ferrors.SigningError("keystore_path is not configured").UserAction().Build()
	}
	info, err := os.Stat(c.KeystorePath)
	if err != nil {
		return ferrors.WrapError(err, ferrors.CategorySigning, "keystore not found").
			Fatal().
			UserAction().
			WithContext("path", c.KeystorePath).
			Build()
	}
	if info.IsDir() {
		return ferrors.SigningError("keystore path is a directory").WithContext("path", c.KeystorePath).Build()
	}
	return nil
}

// run executes a signer. Command lines carry passwords, so errors report the
// tool name, exit status and stderr only.
func (d *Dispatcher) run(ctx context.Context, cmd process.Command, method config.SigningMethod) error {
	if d.Runner == nil {
		return ferrors.InternalError("no process runner configured for signing").Build()
	}
	_, err := d.Runner.Run(ctx, cmd)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return ferrors.WrapError(ctx.Err(), ferrors.CategoryCanceled, "signing canceled").Build()
	}
	var ee *process.ExitError
	if stderrors.As(err, &ee) {
		return ferrors.WrapError(fmt.Errorf("%s exited with status %d", cmd.Name, ee.ExitCode), ferrors.CategorySigning, "signer failed").
			Fatal().
			WithContext("method", string(method)).
			WithContext("exit_code", ee.ExitCode).
			WithContext("stderr", ee.Stderr).
			Build()
	}
	return ferrors.WrapError(err, ferrors.CategorySigning, "signer failed to start").
		Fatal().
		WithContext("method", string(method)).
		Build()
}
