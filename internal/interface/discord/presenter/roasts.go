package presenter

import "math/rand/v2"

// roasts - публичный ответ на /submitsteps.
var roasts = []string{
	"bro thinks hes training for the olympics just to walk in circles",
	"lmao u walked all that and still not touching grass",
	"ur fitbit is literally in its flop era",
	"ok mr marathon man who asked",
	"u walked 100k steps and still a certified npc",
	"damn bro really speedran being annoying",
	"all those steps just to end up back where u started",
	"congrats u unlocked the mid badge",
	"bro thinks hes on tour or smth",
	"u walked like a side quest character nobody talks to",
	"that’s not cardio thats a personality disorder",
	"bro farming steps like its minecraft xp",
	"nah cause even my dog walks more and hes unemployed",
	"2 weeks of walking just to flex on nobody",
	"u walking like u tryna outpace ur problems",
	"bro acts like nike gon sponsor him",
	"imagine bragging about cardio when ur still broke",
	"u walked more than my screen time and thats wild",
	"all those steps and ur still not him",
	"bro got the step count of a pilgrim and the vibes of a potato",
	"congrats u ran away from relevance",
	"ur shoes bout to file a restraining order",
	"bro walking like hes trying to escape the friendzone",
	"nah this is npc pathing fr",
	"u got side quest energy with main character cardio",
	"200k steps just to walk into disappointment",
	"bro took one giant step for mankind and zero for his personality",
	"walking like the final boss of boredom",
	"ok columbus u discovered nothing",
	"ur step count built like a pyramid scheme",
	"bro thinks hes in his cardio arc but hes in his cringe arc",
	"all that walking just to look lost",
	"ur sneakers got more character development than u",
	"bro hit 10 miles per day and still cant run a conversation",
	"certified walker unverified human",
	"nah cause u walking like gta npc on repeat",
	"bro logged more miles than my uber and still useless",
	"congrats u just invented jogging in place for clout",
	"all those steps and ur riz stayed at zero",
	"bro the only thing ur stepping on is my nerves",
}

// Roaster выбирает ответ на ручную отправку шагов.
type Roaster struct {
	pick func(n int) int
}

// NewRoaster создаёт Roaster; pick == nil означает math/rand/v2.
func NewRoaster(pick func(n int) int) *Roaster {
	if pick == nil {
		pick = rand.IntN
	}
	return &Roaster{pick: pick}
}

// Roast возвращает случайную фразу.
func (r *Roaster) Roast() string {
	i := r.pick(len(roasts))
	if i < 0 || i >= len(roasts) {
		i = 0
	}
	return roasts[i]
}

// Roasts возвращает копию списка фраз.
func Roasts() []string {
	out := make([]string, len(roasts))
	copy(out, roasts)
	return out
}
