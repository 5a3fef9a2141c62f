package model

// Stats — агрегированные счётчики для админской статистики.
type Stats struct {
	Users    int `json:"users"`
	Products int `json:"products"`
}
