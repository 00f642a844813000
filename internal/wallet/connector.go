package wallet

import "errors"

var errConnectorNotConfigured = errors.New("connector has no key source")

// Connector is a wallet provider the CLI can connect through. Connectors are
// addressed by their index in the list returned from DefaultConnectors.
type Connector struct {
	Name      string
	KeySource string
	config    func() LocalSignerConfig
}

// ConnectorInfo is the public descriptor of a connector.
type ConnectorInfo struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	KeySource string `json:"key_source"`
	Available bool   `json:"available"`
}

const (
	KeySourceEnv      = "env"
	KeySourceFile     = "file"
	KeySourceKeystore = "keystore"
)

func DefaultConnectors() []Connector {
	return []Connector{
		{Name: "Environment private key", KeySource: KeySourceEnv, config: envKeyConfig},
		{Name: "Private key file", KeySource: KeySourceFile, config: fileKeyConfig},
		{Name: "Encrypted keystore", KeySource: KeySourceKeystore, config: keystoreConfig},
	}
}

// Available reports whether the connector has key material configured. It does
// not decrypt or parse the key.
func (c Connector) Available() bool {
	if c.config == nil {
		return false
	}
	return c.config().configured()
}

// Open loads the connector's signer.
func (c Connector) Open() (Signer, error) {
	if c.config == nil {
		return nil, errConnectorNotConfigured
	}
	signer, err := NewLocalSigner(c.config())
	if err != nil {
		return nil, err
	}
	return signer, nil
}
