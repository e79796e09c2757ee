// Package sign dispatches the signing step to one of a closed set of methods.
package sign

import (
	"fmt"

	"git.home.luguber.info/inful/rommer/internal/config"
	ferrors "git.home.luguber.info/inful/rommer/internal/foundation/errors"
)

// Method is one of APKSigner, JarSigner, Custom or Test.
type Method interface {
	Name() config.SigningMethod
	isMethod()
}

// KeystoreCredentials are shared by the keystore based signers.
type KeystoreCredentials struct {
	KeystorePath     string
	KeyAlias         string
	KeystorePassword string
	KeyPassword      string
}

// APKSigner signs with the Android SDK apksigner tool, producing
// <stem>_signed.zip next to the input archive.
type APKSigner struct{ KeystoreCredentials }

// JarSigner signs the archive in place with the JDK jarsigner tool.
type JarSigner struct{ KeystoreCredentials }

// Custom runs a user command through sh -c; {zip_path} is replaced with the archive path.
type Custom struct{ Command string }

// Test adds a placeholder signature in-process. It never needs credentials.
type Test struct{}

func (APKSigner) Name() config.SigningMethod { return config.SigningAPKSigner }
func (JarSigner) Name() config.SigningMethod { return config.SigningJarSigner }
func (Custom) Name() config.SigningMethod    { return config.SigningCustom }
func (Test) Name() config.SigningMethod      { return config.SigningTest }

func (APKSigner) isMethod() {}
func (JarSigner) isMethod() {}
func (Custom) isMethod()    {}
func (Test) isMethod()      {}

// MethodFromConfig converts the configuration descriptor into a Method.
func MethodFromConfig(c config.SigningConfig) (Method, error) {
	creds := KeystoreCredentials{
		KeystorePath:     c.KeystorePath,
		KeyAlias:         c.KeyAlias,
		KeystorePassword: c.KeystorePassword,
		KeyPassword:      c.KeyPassword,
	}
	switch config.NormalizeSigningMethod(string(c.Method)) {
	case config.SigningAPKSigner:
		return APKSigner{creds}, nil
	case config.SigningJarSigner:
		return JarSigner{creds}, nil
	case config.SigningCustom:
		return Custom{Command: c.CustomCommand}, nil
	case config.SigningTest:
		return Test{}, nil
	default:
		return nil, ferrors.ConfigError(fmt.Sprintf("unknown signing method %q", c.Method)).
			WithContext("field", "signing.method").
			Build()
	}
}
