package chat

// 已刪除用戶的固定佔位資料
const (
	DeletedUsername  = "utilisateur-supprime"
	DeletedFirstName = "Utilisateur"
	DeletedLastName  = "Supprimé"
)

// DeletedUserProfile 保留原始 ID，其餘欄位替換為佔位資料
func DeletedUserProfile(id string) *UserProfile {
	return &UserProfile{
		ID:        id,
		Username:  DeletedUsername,
		FirstName: DeletedFirstName,
		LastName:  DeletedLastName,
		IsDeleted: true,
	}
}

// resolveProfile 用戶不存在或已刪除時返回佔位資料
func resolveProfile(id string, users map[string]*User) *UserProfile {
	if id == "" {
		return nil
	}
	u, ok := users[id]
	if !ok || u == nil || u.IsDeleted {
		return DeletedUserProfile(id)
	}
	return profileOf(u)
}

func profileOf(u *User) *UserProfile {
	p := &UserProfile{
		ID:        u.ID,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
	}
	if u.ProfilePicture != "" {
		pic := u.ProfilePicture
		p.ProfilePicture = &pic
	}
	return p
}

// unresolvedProfile 用戶服務不可用時只返回 ID，不當作已刪除
func unresolvedProfile(id string) *UserProfile {
	if id == "" {
		return nil
	}
	return &UserProfile{ID: id}
}

// DisplayName 全名，已刪除用戶為 "Utilisateur Supprimé"
func (p *UserProfile) DisplayName() string {
	if p == nil {
		return ""
	}
	if p.LastName == "" {
		return p.FirstName
	}
	return p.FirstName + " " + p.LastName
}
