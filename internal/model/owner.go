package model

import "fmt"

// OwnerKind 余额账户/券/流水的所有者类型
type OwnerKind string

const (
	OwnerKindUser OwnerKind = "user"
	OwnerKindVo   OwnerKind = "vo"
)

// Owner 所有者：个人用户或 VO 组
//
// 只能通过 UserOwner / VoOwner 构造，避免在各处散落字符串判断。
type Owner struct {
	Kind OwnerKind
	ID   string
}

func UserOwner(userID string) Owner {
	return Owner{Kind: OwnerKindUser, ID: userID}
}

func VoOwner(voID string) Owner {
	return Owner{Kind: OwnerKindVo, ID: voID}
}

// ParseOwner 从外部传入的字符串构造 Owner
func ParseOwner(kind, id string) (Owner, error) {
	if id == "" {
		return Owner{}, fmt.Errorf("owner id 不能为空")
	}
	switch OwnerKind(kind) {
	case OwnerKindUser:
		return UserOwner(id), nil
	case OwnerKindVo:
		return VoOwner(id), nil
	default:
		return Owner{}, fmt.Errorf("未知的 owner 类型: %q", kind)
	}
}

func (o Owner) IsVo() bool {
	return o.Kind == OwnerKindVo
}

func (o Owner) IsZero() bool {
	return o.Kind == "" && o.ID == ""
}

func (o Owner) String() string {
	return fmt.Sprintf("%s:%s", o.Kind, o.ID)
}
