package affiliate_model

import "time"

// ShareChannel 分享渠道
type ShareChannel string

const (
	ChannelFacebook  ShareChannel = "facebook"
	ChannelInstagram ShareChannel = "instagram"
	ChannelTwitter   ShareChannel = "twitter"
	ChannelZalo      ShareChannel = "zalo"
	ChannelOther     ShareChannel = "other"
)

// Valid 是否是已知渠道
func (c ShareChannel) Valid() bool {
	switch c {
	case ChannelFacebook, ChannelInstagram, ChannelTwitter, ChannelZalo, ChannelOther:
		return true
	}
	return false
}

// ShareLog 分享记录，只追加
type ShareLog struct {
	Id             int          `gorm:"primaryKey;autoIncrement" json:"id"`
	AffiliateId    int          `gorm:"not null;index:idx_share_affiliate_time,priority:1" json:"affiliate_id"`
	ProductId      *int         `gorm:"index" json:"product_id"`
	Channel        ShareChannel `gorm:"type:varchar(20);not null" json:"channel"`
	DestinationUrl string       `gorm:"type:varchar(1024);not null" json:"destination_url"`
	DeviceInfo     string       `gorm:"type:varchar(255)" json:"device_info"`
	ClientIp       string       `gorm:"type:varchar(64)" json:"client_ip"`
	CreateTime     time.Time    `gorm:"column:create_time;not null;index:idx_share_affiliate_time,priority:2" json:"create_time"`
}

func (ShareLog) TableName() string {
	return "affiliate_share_log"
}
