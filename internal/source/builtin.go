package source

import "github.com/patrickjm/patsearch/internal/locator"

func Builtins() []Descriptor {
	return []Descriptor{
		{
			Name:          "inpi",
			SearchURL:     "https://busca.inpi.gov.br/pePI/jsp/patentes/PatenteSearchBasico.jsp",
			LoginURL:      "https://busca.inpi.gov.br/pePI/",
			RequiresAuth:  true,
			CredentialRef: "INPI",
			MaxPages:      DefaultMaxPages,
			StepTimeoutMs: 60000,
			SettleMs:      3000,
			NextPage: []string{
				`a[href*="nextPage"]`,
				"text=Próxima",
			},
			Locators: map[locator.Kind]locator.Set{
				locator.KindLogin: {
					LoginField:     `input[name="T_Login"]`,
					PasswordField:  `input[name="T_Senha"]`,
					SubmitSelector: `input[type="submit"]`,
				},
				locator.KindSearch: {
					QueryField:     `input[name="ExpressaoPesquisa"]`,
					SubmitSelector: `input[type="submit"][name="botao"]`,
				},
			},
		},
		{
			Name:          "patentscope",
			SearchURL:     "https://patentscope.wipo.int/search/en/search.jsf",
			MaxPages:      DefaultMaxPages,
			StepTimeoutMs: 60000,
			SettleMs:      4000,
			NextPage: []string{
				`a[id*="nextPageLink"]`,
				`a[title*="Next"]`,
				`.ui-paginator-next:not(.ui-state-disabled)`,
				`input[value*="Next"]`,
			},
			Locators: map[locator.Kind]locator.Set{
				locator.KindSearch: {
					QueryField:     `input[id$="fpSearch:input"]`,
					SubmitSelector: `[id$="fpSearch:buttons"] button`,
				},
			},
		},
	}
}

func Builtin(name string) (Descriptor, bool) {
	name = sanitizeName(name)
	for _, d := range Builtins() {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}
