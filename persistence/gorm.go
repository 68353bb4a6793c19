package persistence

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/justachat/jachat-services/config"
	"github.com/justachat/jachat-services/types"
)

type GormPersist struct {
	db *gorm.DB
}

// eventRow flattens types.Event for relational storage.
type eventRow struct {
	Id           string `gorm:"primaryKey"`
	ChannelId    string `gorm:"index"`
	UserId       string
	UserNick     string
	Origin       string
	Name         string
	TargetFilter string
	Tags         types.JSONStringMap
	Created      time.Time `gorm:"index"`
}

func NewGormPersister(cfg *config.Config) (Persister, error) {
	db, err := setupGormDB(cfg)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return nil, nil // no or wrong configuration, ignore the persister
	}
	return &GormPersist{db: db}, nil
}

func setupGormDB(cfg *config.Config) (*gorm.DB, error) {
	if cfg.PersistenceConfig.DSN == "" {
		return nil, nil
	}
	var dial gorm.Dialector
	switch cfg.PersistenceConfig.Type {
	case "postgres":
		dial = postgres.Open(cfg.PersistenceConfig.DSN)

	case "sqlite":
		dial = sqlite.Open(cfg.PersistenceConfig.DSN)

	default:
		return nil, fmt.Errorf("invalid gorm configuration")
	}
	db, err := gorm.Open(dial, &gorm.Config{})
	if err != nil {
		return nil, err
	}
	err = db.Migrator().AutoMigrate(
		&types.User{},
		&types.Channel{},
		&types.Ban{},
		&types.Mute{},
		&types.RoomBan{},
		&types.RoomMute{},
		&types.Kline{},
		&types.NickRegistration{},
		&types.ChannelRegistration{},
		&types.ChannelAccessEntry{},
		&types.RoomAdminGrant{},
		&types.AuditEntry{},
		&eventRow{},
	)
	if err != nil {
		return nil, err
	}
	return db, nil
}

func mapErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

func (p *GormPersist) StoreUser(user types.User) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&user).Error
}

func (p *GormPersist) GetUser(user *types.User) error {
	return mapErr(p.db.First(user, "id = ?", user.Id).Error)
}

func (p *GormPersist) GetUserByNick(nick string) (*types.User, error) {
	user := types.User{}
	err := p.db.Where("LOWER(nick) = LOWER(?)", nick).First(&user).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &user, nil
}

func (p *GormPersist) GetUsers() ([]*types.User, error) {
	users := make([]*types.User, 0)
	err := p.db.Find(&users).Error
	return users, err
}

func (p *GormPersist) DeleteUser(user *types.User) error {
	return p.db.Delete(user).Error
}

func (p *GormPersist) CountUsers() (int64, error) {
	var n int64
	err := p.db.Model(&types.User{}).Count(&n).Error
	return n, err
}

func (p *GormPersist) EarliestUserCreation() (time.Time, error) {
	user := types.User{}
	err := p.db.Order("created_at ASC").First(&user).Error
	if err != nil {
		return time.Time{}, mapErr(err)
	}
	return user.CreatedAt, nil
}

func (p *GormPersist) SetUserRole(userId string, role types.Role) error {
	res := p.db.Model(&types.User{}).Where("id = ?", userId).Update("role", role)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *GormPersist) ToggleGhostMode(userId string) (bool, error) {
	var enabled bool
	err := p.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&types.User{}).Where("id = ?", userId).Update("ghost_mode", gorm.Expr("NOT ghost_mode"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		user := types.User{Id: userId}
		if err := tx.First(&user, "id = ?", userId).Error; err != nil {
			return err
		}
		enabled = user.GhostMode
		return nil
	})
	return enabled, mapErr(err)
}

func (p *GormPersist) StoreChannel(channel types.Channel) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&channel).Error
}

func (p *GormPersist) GetChannel(channel *types.Channel) error {
	return mapErr(p.db.First(channel, "id = ?", channel.Id).Error)
}

func (p *GormPersist) GetChannels() ([]*types.Channel, error) {
	channels := make([]*types.Channel, 0)
	err := p.db.Find(&channels).Error
	return channels, err
}

func (p *GormPersist) DeleteChannel(channel *types.Channel) error {
	return p.db.Delete(channel).Error
}

func (p *GormPersist) CountChannels() (int64, error) {
	var n int64
	err := p.db.Model(&types.Channel{}).Count(&n).Error
	return n, err
}

func (p *GormPersist) UpsertBan(ban types.Ban) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&ban).Error
}

func (p *GormPersist) GetBan(userId string) (*types.Ban, error) {
	ban := types.Ban{}
	err := p.db.First(&ban, "user_id = ?", userId).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &ban, nil
}

func (p *GormPersist) DeleteBan(userId string) error {
	return p.db.Delete(&types.Ban{}, "user_id = ?", userId).Error
}

func (p *GormPersist) UpsertMute(mute types.Mute) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&mute).Error
}

func (p *GormPersist) GetMute(userId string) (*types.Mute, error) {
	mute := types.Mute{}
	err := p.db.First(&mute, "user_id = ?", userId).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &mute, nil
}

func (p *GormPersist) DeleteMute(userId string) error {
	return p.db.Delete(&types.Mute{}, "user_id = ?", userId).Error
}

func (p *GormPersist) UpsertRoomBan(ban types.RoomBan) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&ban).Error
}

func (p *GormPersist) GetRoomBan(channelId, userId string) (*types.RoomBan, error) {
	ban := types.RoomBan{}
	err := p.db.First(&ban, "channel_id = ? AND user_id = ?", channelId, userId).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &ban, nil
}

func (p *GormPersist) DeleteRoomBan(channelId, userId string) error {
	return p.db.Delete(&types.RoomBan{}, "channel_id = ? AND user_id = ?", channelId, userId).Error
}

func (p *GormPersist) UpsertRoomMute(mute types.RoomMute) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&mute).Error
}

func (p *GormPersist) GetRoomMute(channelId, userId string) (*types.RoomMute, error) {
	mute := types.RoomMute{}
	err := p.db.First(&mute, "channel_id = ? AND user_id = ?", channelId, userId).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &mute, nil
}

func (p *GormPersist) DeleteRoomMute(channelId, userId string) error {
	return p.db.Delete(&types.RoomMute{}, "channel_id = ? AND user_id = ?", channelId, userId).Error
}

func (p *GormPersist) AddKline(kline types.Kline) error {
	return p.db.Create(&kline).Error
}

func (p *GormPersist) DeleteKlines(ipPattern string) error {
	return p.db.Delete(&types.Kline{}, "ip_pattern = ?", ipPattern).Error
}

func (p *GormPersist) GetKlines() ([]*types.Kline, error) {
	klines := make([]*types.Kline, 0)
	err := p.db.Order("created_at DESC").Find(&klines).Error
	return klines, err
}

func (p *GormPersist) InsertNickRegistration(reg types.NickRegistration) error {
	res := p.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&reg)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (p *GormPersist) GetNickRegistrationByNick(nick string) (*types.NickRegistration, error) {
	reg := types.NickRegistration{}
	err := p.db.First(&reg, "nickname = ?", nick).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &reg, nil
}

func (p *GormPersist) GetNickRegistrationByUser(userId string) (*types.NickRegistration, error) {
	reg := types.NickRegistration{}
	err := p.db.First(&reg, "user_id = ?", userId).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &reg, nil
}

func (p *GormPersist) TouchNickIdentified(userId string, at time.Time) error {
	res := p.db.Model(&types.NickRegistration{}).Where("user_id = ?", userId).Update("last_identified", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *GormPersist) DeleteNickRegistration(userId string) error {
	return p.db.Delete(&types.NickRegistration{}, "user_id = ?", userId).Error
}

func (p *GormPersist) InsertChannelRegistration(reg types.ChannelRegistration) error {
	res := p.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&reg)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func (p *GormPersist) GetChannelRegistration(channelId string) (*types.ChannelRegistration, error) {
	reg := types.ChannelRegistration{}
	err := p.db.First(&reg, "channel_id = ?", channelId).Error
	if err != nil {
		return nil, mapErr(err)
	}
	return &reg, nil
}

func (p *GormPersist) UpsertChannelAccess(entry types.ChannelAccessEntry) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&entry).Error
}

func (p *GormPersist) GetChannelAccessList(channelId string) ([]*types.ChannelAccessEntry, error) {
	entries := make([]*types.ChannelAccessEntry, 0)
	err := p.db.Where("channel_id = ?", channelId).Order("access_level DESC").Find(&entries).Error
	return entries, err
}

func (p *GormPersist) UpsertRoomAdmin(grant types.RoomAdminGrant) error {
	return p.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&grant).Error
}

func (p *GormPersist) IsRoomAdmin(channelId, userId string) (bool, error) {
	var n int64
	err := p.db.Model(&types.RoomAdminGrant{}).Where("channel_id = ? AND user_id = ?", channelId, userId).Count(&n).Error
	return n > 0, err
}

func (p *GormPersist) StoreEvents(events []*types.Event) error {
	rows := make([]*eventRow, 0, len(events))
	for _, event := range events {
		row := &eventRow{
			Id:           event.Id,
			ChannelId:    event.ChannelId,
			Origin:       "services",
			Name:         event.Name,
			TargetFilter: event.TargetFilter,
			Tags:         event.Tags,
			Created:      event.Created,
		}
		if event.Source != nil {
			row.Origin = event.Source.Origin
			if event.Source.User != nil {
				row.UserId = event.Source.User.Id
				row.UserNick = event.Source.User.Nick
			}
		}
		rows = append(rows, row)
	}
	return p.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

func (p *GormPersist) GetEventHistory(channelId string, fromTs, toTs time.Time, fromIdx, maxCount int) ([]*types.Event, error) {
	rows := make([]*eventRow, 0)
	err := p.db.Where("channel_id = ? AND created BETWEEN ? AND ?", channelId, fromTs, toTs).
		Order("created DESC").Limit(maxCount).Offset(fromIdx).Find(&rows).Error
	if err != nil {
		return nil, err
	}
	events := make([]*types.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, &types.Event{
			Id:        row.Id,
			ChannelId: row.ChannelId,
			Source: &types.Source{
				User:   &types.User{Id: row.UserId, Nick: row.UserNick},
				Origin: row.Origin,
			},
			Name:         row.Name,
			TargetFilter: row.TargetFilter,
			Tags:         row.Tags,
			Created:      row.Created,
			History:      true,
		})
	}
	return events, nil
}

func (p *GormPersist) CountMessages() (int64, error) {
	var n int64
	err := p.db.Model(&eventRow{}).Where("name = ?", types.EventTypeChat).Count(&n).Error
	return n, err
}

func (p *GormPersist) StoreAuditEntry(entry types.AuditEntry) error {
	return p.db.Create(&entry).Error
}

func (p *GormPersist) GetAuditEntries(limit int) ([]*types.AuditEntry, error) {
	entries := make([]*types.AuditEntry, 0)
	err := p.db.Order("created_at DESC").Limit(limit).Find(&entries).Error
	return entries, err
}

func (p *GormPersist) Close() error {
	return nil
}
