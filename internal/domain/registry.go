package domain

// RegistryAuth holds credentials for one image registry.
type RegistryAuth struct {
	Server        string
	Username      string
	Password      string
	IdentityToken string
}

// Empty reports whether there is nothing to authenticate with.
func (a RegistryAuth) Empty() bool {
	return a.Username == "" || a.Password == ""
}
