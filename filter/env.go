package filter

/*
Here the Env used in the event target filters is defined.
Once this struct is fixed, it should not be changed, otherwise filters in
persisted history events may not compile any more (f.e. if properties are
renamed etc.)
*/

type User struct {
	Id         string
	Nick       string
	Role       string
	Language   string
	Tags       map[string]string
	LastOnline int64
}

type Room struct {
	Id    string
	Name  string
	Owner User
	Tags  map[string]string
}

type Source struct {
	User
	Origin string
}

type Client struct {
	ClientLanguage string
}

type Target struct {
	User
	Client
}

type Env struct {
	Room
	Source
	Target
	Created int64
	Name    string
	Tags    map[string]string

	AsInt         func(string) int64
	AsFloat       func(string) float64
	AsStringSlice func(string) []string
	AsIntSlice    func(string) []int64
	AsFloatSlice  func(string) []float64
}

// FromUser maps a domain user into the filter environment shape.
func FromUser(id, nick, role, language string, tags map[string]string, lastOnline int64) User {
	return User{
		Id:         id,
		Nick:       nick,
		Role:       role,
		Language:   language,
		Tags:       tags,
		LastOnline: lastOnline,
	}
}
