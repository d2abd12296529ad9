package replica

import (
	"errors"
	"fmt"

	"github.com/DoyleJ11/matchmaking-client/internal/types"
)

var ErrMultipleObjects = errors.New("more than one replicated object of the same kind")
var ErrUnknownEvent = errors.New("unknown replication event")

type EventType string

const (
	EvtCreated   EventType = "created"
	EvtUpdated   EventType = "updated"
	EvtDestroyed EventType = "destroyed"
)

type Event struct {
	Type   EventType
	Owner  types.SteamID
	Object types.Object
}

type key struct {
	kind types.Kind
	id   uint64
}

// Cache holds every replicated object pushed to the client, per owner.
type Cache struct {
	owners map[types.SteamID]map[key]types.Object
}

func NewCache() *Cache {
	return &Cache{owners: make(map[types.SteamID]map[key]types.Object)}
}

// Apply stores or removes the object carried by ev. Created and updated
// events both replace the cached copy, which clears any local offline mark.
func (c *Cache) Apply(ev Event) error {
	if ev.Object == nil {
		return fmt.Errorf("%w: nil object", ErrUnknownEvent)
	}
	k := key{kind: ev.Object.Kind(), id: ev.Object.ObjectID()}
	objs := c.owners[ev.Owner]

	switch ev.Type {
	case EvtCreated, EvtUpdated:
		if objs == nil {
			objs = make(map[key]types.Object)
			c.owners[ev.Owner] = objs
		}
		objs[k] = ev.Object
	case EvtDestroyed:
		delete(objs, k)
		if len(objs) == 0 {
			delete(c.owners, ev.Owner)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}
	return nil
}

func (c *Cache) only(owner types.SteamID, kind types.Kind) (types.Object, error) {
	var found types.Object
	for k, obj := range c.owners[owner] {
		if k.kind != kind {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: %s", ErrMultipleObjects, kind)
		}
		found = obj
	}
	return found, nil
}

// MarkPartyOffline annotates the owner's cached party as stale.
func (c *Cache) MarkPartyOffline(owner types.SteamID) bool {
	obj, err := c.only(owner, types.KindParty)
	if err != nil || obj == nil {
		return false
	}
	p := obj.(types.Party)
	p.Offline = true
	c.owners[owner][key{kind: types.KindParty, id: p.ObjectID()}] = p
	return true
}

// View is the local player's read-only projection of the cache.
type View struct {
	cache *Cache
	owner types.SteamID
}

func NewView(c *Cache, owner types.SteamID) View {
	return View{cache: c, owner: owner}
}

func (v View) Owner() types.SteamID { return v.owner }

// Party returns a copy of the one party the local player belongs to, or nil.
func (v View) Party() (*types.Party, error) {
	obj, err := v.cache.only(v.owner, types.KindParty)
	if err != nil || obj == nil {
		return nil, err
	}
	p := obj.(types.Party).Clone()
	return &p, nil
}

func (v View) Lobby() (*types.Lobby, error) {
	obj, err := v.cache.only(v.owner, types.KindLobby)
	if err != nil || obj == nil {
		return nil, err
	}
	l := obj.(types.Lobby)
	return &l, nil
}
