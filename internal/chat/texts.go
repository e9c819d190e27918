package chat

import (
	"fmt"

	"github.com/m3rciful/cozybot/internal/lang"
)

// DefaultShopName is used in the greeting when none is configured.
const DefaultShopName = "Shop Cozy"

type phrases struct {
	greeting        string
	help            string
	cancelled       string
	nothingToCancel string
	keyboard        [][]string
}

var texts = map[lang.Tag]phrases{
	lang.Ukrainian: {
		greeting:        "Привіт! Я AI‑помічник магазину %s. Питайте що завгодно або тисніть кнопки нижче.",
		help:            "Команди:\n/start — старт\n/help — допомога\n/lead — залишити заявку\n/cancel — скасувати заявку\n",
		cancelled:       "Заявку скасовано.",
		nothingToCancel: "Активної заявки немає.",
		keyboard:        [][]string{{"Меню", "Доставка"}, {"Залишити заявку"}, {"Контакти", "Години роботи"}},
	},
	lang.Russian: {
		greeting:        "Привет! Я AI‑помощник магазина %s. Задайте вопрос или нажмите кнопки ниже.",
		help:            "Команды:\n/start — старт\n/help — помощь\n/lead — оставить заявку\n/cancel — отменить заявку\n",
		cancelled:       "Заявка отменена.",
		nothingToCancel: "Активной заявки нет.",
		keyboard:        [][]string{{"Меню", "Доставка"}, {"Оставить заявку"}, {"Контакты", "Часы работы"}},
	},
}

func textsFor(tag lang.Tag) phrases {
	if tag == lang.Russian {
		return texts[lang.Russian]
	}
	return texts[lang.Ukrainian]
}

// Keyboard returns the reply keyboard rows for tag. The result is a copy.
func Keyboard(tag lang.Tag) [][]string {
	src := textsFor(tag).keyboard
	out := make([][]string, len(src))
	for i, row := range src {
		out[i] = append([]string(nil), row...)
	}
	return out
}

type quickAction int

const (
	quickLead quickAction = iota + 1
	quickContacts
	quickHours
)

// quickReplies maps lower-cased button labels of both languages to actions.
var quickReplies = map[string]quickAction{
	"залишити заявку": quickLead,
	"оставить заявку": quickLead,
	"контакти":        quickContacts,
	"контакты":        quickContacts,
	"години роботи":   quickHours,
	"часы работы":     quickHours,
}

func contactsText(phone string) string {
	return fmt.Sprintf("Телефон: %s", phone)
}
