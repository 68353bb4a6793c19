package persistence

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/buntdb"

	"github.com/justachat/jachat-services/config"
	"github.com/justachat/jachat-services/globals"
	"github.com/justachat/jachat-services/types"
)

// BuntPersist is the single-file storage backend. All keys are namespaced by
// record type, values are JSON. Every mutation runs inside one db.Update
// closure, which gives the insert-if-absent and upsert atomicity the
// governance layer relies on (buntdb serializes writers).
type BuntPersist struct {
	db *buntdb.DB
}

const (
	keyUser       = "user:"
	keyChannel    = "channel:"
	keyBan        = "ban:"
	keyMute       = "mute:"
	keyRoomBan    = "roomban:"
	keyRoomMute   = "roommute:"
	keyKline      = "kline:"
	keyNickReg    = "nickreg:"
	keyChanReg    = "chanreg:"
	keyChanAccess = "chanaccess:"
	keyRoomAdmin  = "roomadmin:"
	keyEvent      = "event:"
	keyAudit      = "audit:"
)

func NewBuntPersister(cfg *config.Config) (Persister, error) {
	db, err := setupBuntDB(cfg)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, nil // no or wrong configuration, ignore the persister
	}
	return &BuntPersist{db: db}, nil
}

func setupBuntDB(cfg *config.Config) (*buntdb.DB, error) {
	if cfg.PersistenceConfig.Type != "buntdb" || cfg.PersistenceConfig.DSN == "" {
		return nil, nil
	}
	db, err := buntdb.Open(cfg.PersistenceConfig.DSN)
	if err != nil {
		return nil, err
	}
	err = db.CreateIndex("eventsts", keyEvent+"*", buntdb.IndexJSON("created"))
	if err != nil && err != buntdb.ErrIndexExists {
		db.Close()
		return nil, err
	}
	return db, nil
}

func mapBuntErr(err error) error {
	if err == buntdb.ErrNotFound {
		return ErrNotFound
	}
	return err
}

func (p *BuntPersist) setJSON(key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(key, string(raw), nil)
		return err
	})
}

func (p *BuntPersist) getJSON(key string, v interface{}) error {
	err := p.db.View(func(tx *buntdb.Tx) error {
		raw, err := tx.Get(key)
		if err != nil {
			return err
		}
		return json.Unmarshal([]byte(raw), v)
	})
	return mapBuntErr(err)
}

func (p *BuntPersist) deleteKey(key string) error {
	err := p.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(key)
		return err
	})
	if err == buntdb.ErrNotFound {
		return nil // deletes are idempotent
	}
	return err
}

func (p *BuntPersist) ascend(prefix string, fn func(raw string) error) error {
	return p.db.View(func(tx *buntdb.Tx) error {
		var inner error
		err := tx.AscendKeys(prefix+"*", func(key, val string) bool {
			inner = fn(val)
			return inner == nil
		})
		if inner != nil {
			return inner
		}
		return err
	})
}

func (p *BuntPersist) StoreUser(user types.User) error {
	if user.Id == "" {
		return fmt.Errorf("no user id")
	}
	return p.setJSON(keyUser+user.Id, user)
}

func (p *BuntPersist) GetUser(user *types.User) error {
	if user.Id == "" {
		return fmt.Errorf("no user id")
	}
	return p.getJSON(keyUser+user.Id, user)
}

func (p *BuntPersist) GetUserByNick(nick string) (*types.User, error) {
	var found *types.User
	err := p.ascend(keyUser, func(raw string) error {
		if found != nil {
			return nil
		}
		user := types.User{}
		if err := json.Unmarshal([]byte(raw), &user); err != nil {
			return nil // skip unreadable records
		}
		if strings.EqualFold(user.Nick, nick) {
			found = &user
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (p *BuntPersist) GetUsers() ([]*types.User, error) {
	users := make([]*types.User, 0)
	err := p.ascend(keyUser, func(raw string) error {
		user := types.User{}
		if err := json.Unmarshal([]byte(raw), &user); err == nil {
			users = append(users, &user)
		}
		return nil
	})
	return users, err
}

func (p *BuntPersist) DeleteUser(user *types.User) error {
	return p.deleteKey(keyUser + user.Id)
}

func (p *BuntPersist) CountUsers() (int64, error) {
	var n int64
	err := p.ascend(keyUser, func(string) error {
		n++
		return nil
	})
	return n, err
}

func (p *BuntPersist) EarliestUserCreation() (time.Time, error) {
	var earliest time.Time
	err := p.ascend(keyUser, func(raw string) error {
		user := types.User{}
		if err := json.Unmarshal([]byte(raw), &user); err != nil {
			return nil
		}
		if earliest.IsZero() || user.CreatedAt.Before(earliest) {
			earliest = user.CreatedAt
		}
		return nil
	})
	if err != nil {
		return time.Time{}, err
	}
	if earliest.IsZero() {
		return time.Time{}, ErrNotFound
	}
	return earliest, nil
}

func (p *BuntPersist) SetUserRole(userId string, role types.Role) error {
	err := p.db.Update(func(tx *buntdb.Tx) error {
		raw, err := tx.Get(keyUser + userId)
		if err != nil {
			return err
		}
		user := types.User{}
		if err := json.Unmarshal([]byte(raw), &user); err != nil {
			return err
		}
		user.Role = role
		updated, err := json.Marshal(user)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(keyUser+userId, string(updated), nil)
		return err
	})
	return mapBuntErr(err)
}

func (p *BuntPersist) ToggleGhostMode(userId string) (bool, error) {
	var enabled bool
	err := p.db.Update(func(tx *buntdb.Tx) error {
		raw, err := tx.Get(keyUser + userId)
		if err != nil {
			return err
		}
		user := types.User{}
		if err := json.Unmarshal([]byte(raw), &user); err != nil {
			return err
		}
		user.GhostMode = !user.GhostMode
		enabled = user.GhostMode
		updated, err := json.Marshal(user)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(keyUser+userId, string(updated), nil)
		return err
	})
	return enabled, mapBuntErr(err)
}

// channelRecord is the stored form of a channel. The wire type keeps the
// admin password out of JSON, the store must not, so the record adds the
// field back under its own tag.
type channelRecord struct {
	types.Channel
	AdminPassword string `json:"admin_password,omitempty"`
}

func (p *BuntPersist) StoreChannel(channel types.Channel) error {
	if channel.Id == "" {
		return fmt.Errorf("no channel id")
	}
	record := channelRecord{Channel: channel, AdminPassword: channel.AdminPassword}
	return p.setJSON(keyChannel+channel.Id, record)
}

func (p *BuntPersist) GetChannel(channel *types.Channel) error {
	if channel.Id == "" {
		return fmt.Errorf("no channel id")
	}
	record := channelRecord{}
	if err := p.getJSON(keyChannel+channel.Id, &record); err != nil {
		return err
	}
	*channel = record.Channel
	channel.AdminPassword = record.AdminPassword
	return nil
}

func (p *BuntPersist) GetChannels() ([]*types.Channel, error) {
	channels := make([]*types.Channel, 0)
	err := p.ascend(keyChannel, func(raw string) error {
		record := channelRecord{}
		if err := json.Unmarshal([]byte(raw), &record); err == nil {
			channel := record.Channel
			channel.AdminPassword = record.AdminPassword
			channels = append(channels, &channel)
		}
		return nil
	})
	return channels, err
}

func (p *BuntPersist) DeleteChannel(channel *types.Channel) error {
	return p.deleteKey(keyChannel + channel.Id)
}

func (p *BuntPersist) CountChannels() (int64, error) {
	var n int64
	err := p.ascend(keyChannel, func(string) error {
		n++
		return nil
	})
	return n, err
}

func (p *BuntPersist) UpsertBan(ban types.Ban) error {
	return p.setJSON(keyBan+ban.UserId, ban)
}

func (p *BuntPersist) GetBan(userId string) (*types.Ban, error) {
	ban := types.Ban{}
	if err := p.getJSON(keyBan+userId, &ban); err != nil {
		return nil, err
	}
	return &ban, nil
}

func (p *BuntPersist) DeleteBan(userId string) error {
	return p.deleteKey(keyBan + userId)
}

func (p *BuntPersist) UpsertMute(mute types.Mute) error {
	return p.setJSON(keyMute+mute.UserId, mute)
}

func (p *BuntPersist) GetMute(userId string) (*types.Mute, error) {
	mute := types.Mute{}
	if err := p.getJSON(keyMute+userId, &mute); err != nil {
		return nil, err
	}
	return &mute, nil
}

func (p *BuntPersist) DeleteMute(userId string) error {
	return p.deleteKey(keyMute + userId)
}

func roomKey(prefix, channelId, userId string) string {
	return prefix + channelId + ":" + userId
}

func (p *BuntPersist) UpsertRoomBan(ban types.RoomBan) error {
	return p.setJSON(roomKey(keyRoomBan, ban.ChannelId, ban.UserId), ban)
}

func (p *BuntPersist) GetRoomBan(channelId, userId string) (*types.RoomBan, error) {
	ban := types.RoomBan{}
	if err := p.getJSON(roomKey(keyRoomBan, channelId, userId), &ban); err != nil {
		return nil, err
	}
	return &ban, nil
}

func (p *BuntPersist) DeleteRoomBan(channelId, userId string) error {
	return p.deleteKey(roomKey(keyRoomBan, channelId, userId))
}

func (p *BuntPersist) UpsertRoomMute(mute types.RoomMute) error {
	return p.setJSON(roomKey(keyRoomMute, mute.ChannelId, mute.UserId), mute)
}

func (p *BuntPersist) GetRoomMute(channelId, userId string) (*types.RoomMute, error) {
	mute := types.RoomMute{}
	if err := p.getJSON(roomKey(keyRoomMute, channelId, userId), &mute); err != nil {
		return nil, err
	}
	return &mute, nil
}

func (p *BuntPersist) DeleteRoomMute(channelId, userId string) error {
	return p.deleteKey(roomKey(keyRoomMute, channelId, userId))
}

func (p *BuntPersist) AddKline(kline types.Kline) error {
	// duplicates of the same pattern are allowed, every record gets its own key
	key := fmt.Sprintf("%s%d:%s", keyKline, kline.CreatedAt.UnixNano(), kline.IpPattern)
	return p.setJSON(key, kline)
}

func (p *BuntPersist) DeleteKlines(ipPattern string) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		keys := make([]string, 0)
		err := tx.AscendKeys(keyKline+"*", func(key, val string) bool {
			kline := types.Kline{}
			if err := json.Unmarshal([]byte(val), &kline); err == nil && kline.IpPattern == ipPattern {
				keys = append(keys, key)
			}
			return true
		})
		if err != nil {
			return err
		}
		for _, key := range keys {
			if _, err := tx.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *BuntPersist) GetKlines() ([]*types.Kline, error) {
	klines := make([]*types.Kline, 0)
	err := p.ascend(keyKline, func(raw string) error {
		kline := types.Kline{}
		if err := json.Unmarshal([]byte(raw), &kline); err == nil {
			klines = append(klines, &kline)
		}
		return nil
	})
	return klines, err
}

func (p *BuntPersist) InsertNickRegistration(reg types.NickRegistration) error {
	raw, err := json.Marshal(reg)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		// uniqueness on both the user and the nickname, checked and
		// inserted inside one write transaction
		if _, err := tx.Get(keyNickReg + reg.UserId); err == nil {
			return ErrConflict
		}
		var conflict bool
		err := tx.AscendKeys(keyNickReg+"*", func(key, val string) bool {
			other := types.NickRegistration{}
			if err := json.Unmarshal([]byte(val), &other); err == nil && strings.EqualFold(other.Nickname, reg.Nickname) {
				conflict = true
				return false
			}
			return true
		})
		if err != nil {
			return err
		}
		if conflict {
			return ErrConflict
		}
		_, _, err = tx.Set(keyNickReg+reg.UserId, string(raw), nil)
		return err
	})
}

func (p *BuntPersist) GetNickRegistrationByNick(nick string) (*types.NickRegistration, error) {
	var found *types.NickRegistration
	err := p.ascend(keyNickReg, func(raw string) error {
		if found != nil {
			return nil
		}
		reg := types.NickRegistration{}
		if err := json.Unmarshal([]byte(raw), &reg); err == nil && strings.EqualFold(reg.Nickname, nick) {
			found = &reg
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, ErrNotFound
	}
	return found, nil
}

func (p *BuntPersist) GetNickRegistrationByUser(userId string) (*types.NickRegistration, error) {
	reg := types.NickRegistration{}
	if err := p.getJSON(keyNickReg+userId, &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (p *BuntPersist) TouchNickIdentified(userId string, at time.Time) error {
	err := p.db.Update(func(tx *buntdb.Tx) error {
		raw, err := tx.Get(keyNickReg + userId)
		if err != nil {
			return err
		}
		reg := types.NickRegistration{}
		if err := json.Unmarshal([]byte(raw), &reg); err != nil {
			return err
		}
		reg.LastIdentified = &at
		updated, err := json.Marshal(reg)
		if err != nil {
			return err
		}
		_, _, err = tx.Set(keyNickReg+userId, string(updated), nil)
		return err
	})
	return mapBuntErr(err)
}

func (p *BuntPersist) DeleteNickRegistration(userId string) error {
	return p.deleteKey(keyNickReg + userId)
}

func (p *BuntPersist) InsertChannelRegistration(reg types.ChannelRegistration) error {
	raw, err := json.Marshal(reg)
	if err != nil {
		return err
	}
	return p.db.Update(func(tx *buntdb.Tx) error {
		if _, err := tx.Get(keyChanReg + reg.ChannelId); err == nil {
			return ErrConflict
		}
		_, _, err := tx.Set(keyChanReg+reg.ChannelId, string(raw), nil)
		return err
	})
}

func (p *BuntPersist) GetChannelRegistration(channelId string) (*types.ChannelRegistration, error) {
	reg := types.ChannelRegistration{}
	if err := p.getJSON(keyChanReg+channelId, &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

func (p *BuntPersist) UpsertChannelAccess(entry types.ChannelAccessEntry) error {
	return p.setJSON(roomKey(keyChanAccess, entry.ChannelId, entry.UserId), entry)
}

func (p *BuntPersist) GetChannelAccessList(channelId string) ([]*types.ChannelAccessEntry, error) {
	entries := make([]*types.ChannelAccessEntry, 0)
	err := p.ascend(keyChanAccess+channelId+":", func(raw string) error {
		entry := types.ChannelAccessEntry{}
		if err := json.Unmarshal([]byte(raw), &entry); err == nil {
			entries = append(entries, &entry)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sortAccessEntries(entries)
	return entries, nil
}

func sortAccessEntries(entries []*types.ChannelAccessEntry) {
	// descending by access level, insertion sort is fine for access lists
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && entries[j].AccessLevel > entries[j-1].AccessLevel; j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
}

func (p *BuntPersist) UpsertRoomAdmin(grant types.RoomAdminGrant) error {
	return p.setJSON(roomKey(keyRoomAdmin, grant.ChannelId, grant.UserId), grant)
}

func (p *BuntPersist) IsRoomAdmin(channelId, userId string) (bool, error) {
	grant := types.RoomAdminGrant{}
	err := p.getJSON(roomKey(keyRoomAdmin, channelId, userId), &grant)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (p *BuntPersist) StoreEvents(events []*types.Event) error {
	return p.db.Update(func(tx *buntdb.Tx) error {
		for _, event := range events {
			raw, err := json.Marshal(event)
			if err != nil {
				globals.AppLogger.Error("could not marshal event", "error", err)
				return err
			}
			_, _, err = tx.Set(keyEvent+event.Id, string(raw), nil)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (p *BuntPersist) GetEventHistory(channelId string, fromTs, toTs time.Time, fromIdx, maxCount int) ([]*types.Event, error) {
	events := make([]*types.Event, 0)
	fromCond := fmt.Sprintf(`{"created":"%s"}`, fromTs.In(time.UTC).Format(time.RFC3339))
	toCond := fmt.Sprintf(`{"created":"%s"}`, toTs.In(time.UTC).Format(time.RFC3339))
	err := p.db.View(func(tx *buntdb.Tx) error {
		currentNo := -1
		count := 0
		return tx.DescendRange("eventsts", toCond, fromCond, func(key, val string) bool {
			event := &types.Event{}
			if err := json.Unmarshal([]byte(val), event); err != nil {
				return true
			}
			if event.ChannelId != channelId {
				return true
			}
			currentNo++
			if currentNo < fromIdx {
				return true
			}
			event.History = true
			events = append(events, event)
			count++
			return maxCount <= 0 || count < maxCount
		})
	})
	return events, err
}

func (p *BuntPersist) CountMessages() (int64, error) {
	var n int64
	err := p.ascend(keyEvent, func(raw string) error {
		event := types.Event{}
		if err := json.Unmarshal([]byte(raw), &event); err == nil && event.Name == types.EventTypeChat {
			n++
		}
		return nil
	})
	return n, err
}

func (p *BuntPersist) StoreAuditEntry(entry types.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	// the uuid suffix keeps same-nanosecond entries from overwriting each
	// other, descending key order still follows the timestamp prefix
	key := fmt.Sprintf("%s%020d:%s", keyAudit, entry.CreatedAt.UnixNano(), uuid.NewString())
	return p.setJSON(key, entry)
}

func (p *BuntPersist) GetAuditEntries(limit int) ([]*types.AuditEntry, error) {
	entries := make([]*types.AuditEntry, 0)
	err := p.db.View(func(tx *buntdb.Tx) error {
		return tx.DescendKeys(keyAudit+"*", func(key, val string) bool {
			entry := types.AuditEntry{}
			if err := json.Unmarshal([]byte(val), &entry); err == nil {
				entries = append(entries, &entry)
			}
			return limit <= 0 || len(entries) < limit
		})
	})
	return entries, err
}

func (p *BuntPersist) Close() error {
	return p.db.Close()
}
